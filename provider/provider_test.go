package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type testProvider struct {
	name string
	id   int
}

func (p *testProvider) Name() string                     { return p.name }
func (p *testProvider) IsAvailable(context.Context) bool { return true }

func TestRegistryRegisterAndCreate(t *testing.T) {
	reg := NewRegistry[*testProvider, int]()
	reg.RegisterFactory("test", func(id int) (*testProvider, error) {
		return &testProvider{name: "test", id: id}, nil
	})

	p, err := reg.Create("test", 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Name() != "test" || p.id != 3 {
		t.Errorf("unexpected provider %+v", p)
	}
	if !reg.Has("test") || reg.Has("other") {
		t.Error("unexpected Has result")
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	reg := NewRegistry[*testProvider, int]()
	reg.RegisterFactory("known", func(int) (*testProvider, error) { return nil, nil })
	_, err := reg.Create("missing", 0)
	if err == nil {
		t.Fatal("expected error for unregistered factory")
	}
	var unknown *UnknownError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownError, got %T", err)
	}
	if unknown.Name != "missing" || len(unknown.Have) != 1 || unknown.Have[0] != "known" {
		t.Errorf("unexpected error %+v", unknown)
	}
	if !strings.Contains(err.Error(), `"missing" not registered`) {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRegistryFactoryError(t *testing.T) {
	reg := NewRegistry[*testProvider, int]()
	boom := errors.New("boom")
	reg.RegisterFactory("bad", func(int) (*testProvider, error) { return nil, boom })
	if _, err := reg.Create("bad", 0); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestRegistryReplaceFactory(t *testing.T) {
	reg := NewRegistry[*testProvider, int]()
	reg.RegisterFactory("sidecar", func(int) (*testProvider, error) { return &testProvider{name: "old"}, nil })
	reg.RegisterFactory("sidecar", func(int) (*testProvider, error) { return &testProvider{name: "new"}, nil })

	p, err := reg.Create("sidecar", 0)
	if err != nil || p.Name() != "new" {
		t.Errorf("expected replaced factory, got %v, %v", p, err)
	}
	if got := reg.List(); len(got) != 1 {
		t.Errorf("replacing must not duplicate names: %v", got)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry[*testProvider, int]()
	reg.RegisterFactory("beta", func(int) (*testProvider, error) { return &testProvider{name: "beta"}, nil })
	reg.RegisterFactory("alpha", func(int) (*testProvider, error) { return &testProvider{name: "alpha"}, nil })

	names := reg.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("expected sorted [alpha beta], got %v", names)
	}
}
