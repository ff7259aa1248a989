package util

import "testing"

func TestParseSizeStrict(t *testing.T) {
	const mib = 1 << 20
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100MB", want: 100 * mib},
		{in: "100MiB", want: 100 * mib},
		{in: "  64 kib ", want: 64 << 10},
		{in: "2gb", want: 2 << 30},
		{in: "104857600", want: 100 * mib},
		{in: "7B", want: 7},
		{in: "", want: 0},
		{in: "ten MB", wantErr: true},
		{in: "-1KB", wantErr: true},
		{in: "1.5MB", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSizeStrict(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSizeStrict(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSizeStrict(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSizeFallsBack(t *testing.T) {
	const def = 5 << 20
	for _, in := range []string{"", "   ", "lots"} {
		if got := ParseSize(in, def); got != def {
			t.Errorf("ParseSize(%q) = %d, want default", in, got)
		}
	}
	if got := ParseSize("1KB", def); got != 1024 {
		t.Errorf("ParseSize(1KB) = %d", got)
	}
}

func TestFormatSize(t *testing.T) {
	for n, want := range map[int64]string{
		0:         "0B",
		1023:      "1023B",
		1536:      "1.5KB",
		100 << 20: "100.0MB",
		3 << 30:   "3.0GB",
	} {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	for _, tt := range []struct {
		secret string
		keep   int
		want   string
	}{
		{"sk-abcdefghijkl", 5, "sk-ab***"},
		{"short", 10, "***"},
		{"", 3, "***"},
	} {
		if got := MaskSecret(tt.secret, tt.keep); got != tt.want {
			t.Errorf("MaskSecret(%q, %d) = %q, want %q", tt.secret, tt.keep, got, tt.want)
		}
	}
}
