package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/whisperd/errors"
)

// structValidator names fields by their json tag, then mapstructure tag,
// then snake_cased Go name, so messages use the key a caller wrote.
var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(tagName)
	return v
})

func tagName(fld reflect.StructField) string {
	for _, key := range []string{"json", "mapstructure"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return toSnakeCase(fld.Name)
}

// Validate checks s against its `validate` tags and reports every failing
// field the way Validator.Validate does.
func Validate(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Validation("validation failed").WithCause(err)
	}
	v := New()
	for _, fe := range fieldErrs {
		v.AddError(fieldPath(fe), message(fe))
	}
	return v.Validate()
}

// fieldPath drops the root struct name: "Config.model.beam_size" becomes
// "model.beam_size".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

var tagMessages = map[string]string{
	"required":      "is required",
	"gte":           "must be >= %s",
	"lte":           "must be <= %s",
	"gt":            "must be > %s",
	"url":           "must be a valid URL",
	"hostname_port": "must be host:port",
	"oneof":         "must be one of: %s",
	"startswith":    "must start with %s",
}

func message(fe validator.FieldError) string {
	switch tag := fe.Tag(); tag {
	case "min", "max":
		bound := map[string]string{"min": "at least", "max": "at most"}[tag]
		msg := "must be " + bound + " " + fe.Param()
		if fe.Kind() == reflect.String {
			msg += " characters"
		}
		return msg
	default:
		tmpl, ok := tagMessages[tag]
		if !ok {
			return "is invalid"
		}
		return strings.Replace(tmpl, "%s", fe.Param(), 1)
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
