// Package bind decodes and validates JSON request bodies
package bind

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	perr "mpak/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

const defaultMaxBytes = 1 << 20

// JSONOptions tunes ParseJSON
type JSONOptions struct {
	// MaxBytes caps the body; zero means 1MB
	MaxBytes int64
	// Strict rejects fields the target type does not declare
	Strict bool
	// AllowEmpty yields the zero value for an empty body on any method
	AllowEmpty bool
}

// Validator is the shared validator and its english translator
type Validator struct {
	V     *validator.Validate
	Trans ut.Translator
}

var (
	scopedName = regexp.MustCompile(`^@[a-z0-9][a-z0-9-]{0,38}/[a-z0-9][a-z0-9._-]{0,213}$`)
	sha256Hex  = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// Get returns the process-wide validator
var Get = sync.OnceValue(func() *Validator {
	loc := en.New()
	trans, _ := ut.New(loc, loc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = entrans.RegisterDefaultTranslations(v, trans)

	_ = v.RegisterValidation("scoped_name", func(fl validator.FieldLevel) bool {
		return scopedName.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("sha256hex", func(fl validator.FieldLevel) bool {
		return sha256Hex.MatchString(fl.Field().String())
	})

	for tag, text := range map[string]string{
		"min":         "{0} must be at least {1}",
		"max":         "{0} must be at most {1}",
		"scoped_name": "{0} must look like @scope/name",
		"sha256hex":   "{0} must be a lowercase hex sha256 digest",
	} {
		_ = v.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				msg, _ := t.T(fe.Tag(), fe.Field(), fe.Param())
				return msg
			},
		)
	}
	return &Validator{V: v, Trans: trans}
})

// Check validates s and returns the first failure as a validation error carrying its field
func Check(s any) error {
	err := Get().V.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "validator misuse")
	}
	fe := verrs[0]
	return perr.WithField(perr.New(perr.ErrorCodeValidation, fe.Translate(Get().Trans)), fe.Field())
}

// ParseJSON reads one JSON document from r's body into T and validates it
func ParseJSON[T any](r *http.Request, opts ...JSONOptions) (T, error) {
	var out T
	var o JSONOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, o.MaxBytes+1))
	if err != nil {
		return out, perr.JSONErrf("read body: %v", err)
	}
	if int64(len(body)) > o.MaxBytes {
		return out, perr.JSONErrf("body exceeds %d bytes", o.MaxBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if o.AllowEmpty || bodyless(r.Method) {
			return out, nil
		}
		return out, perr.JSONErrf("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if o.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&out); err != nil {
		return out, perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return out, perr.JSONErrf("unexpected trailing data")
	}
	if err := Check(out); err != nil {
		return out, err
	}
	return out, nil
}

func bodyless(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
