package bpipe

import (
	"context"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// ValidationResult is a tree of field-keyed failure reasons. Children hold the results of nested
// objects and array items.
type ValidationResult struct {
	Key      string                       `json:"key"`
	Failures map[string][]string          `json:"failures,omitempty"`
	Children map[string]*ValidationResult `json:"children,omitempty"`
}

// NewValidationResult inits an empty (valid) result.
func NewValidationResult(key string) *ValidationResult {
	return &ValidationResult{Key: key}
}

// AddFailure records a failure reason for a field.
func (r *ValidationResult) AddFailure(field, reason string) {
	if r.Failures == nil {
		r.Failures = map[string][]string{}
	}

	r.Failures[field] = append(r.Failures[field], reason)
}

// Child returns the nested result for key, creating it when necessary.
func (r *ValidationResult) Child(key string) *ValidationResult {
	if r.Children == nil {
		r.Children = map[string]*ValidationResult{}
	}

	child, ok := r.Children[key]
	if !ok {
		child = NewValidationResult(key)
		r.Children[key] = child
	}

	return child
}

// Valid is true when no failure was recorded anywhere in the tree.
func (r *ValidationResult) Valid() bool {
	if r == nil {
		return true
	}

	for _, reasons := range r.Failures {
		if len(reasons) > 0 {
			return false
		}
	}

	return lo.EveryBy(lo.Values(r.Children), (*ValidationResult).Valid)
}

// Flatten returns the failures keyed by their dotted path, e.g. "0.name" for the first array item.
func (r *ValidationResult) Flatten() map[string][]string {
	out := map[string][]string{}
	r.flatten("", out)

	return out
}

func (r *ValidationResult) flatten(prefix string, out map[string][]string) {
	for field, reasons := range r.Failures {
		if len(reasons) > 0 {
			out[prefix+field] = reasons
		}
	}

	for key, child := range r.Children {
		child.flatten(prefix+key+".", out)
	}
}

// FieldValidator validates a single field, next to the struct tags of the schema. The value is the
// field as decoded from its json form. A returned error's message is the failure reason.
type FieldValidator func(ctx context.Context, value any) error

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		default:
			return name
		}
	})

	return v
}

// Validate validates value against the `validate` struct tags of its type and the extra field
// validators. The raw json form of the value is used to look up the fields for the extra validators.
func Validate(ctx context.Context, key string, value any, raw []byte, rules map[string][]FieldValidator) *ValidationResult {
	res := NewValidationResult(key)
	validateStruct(ctx, res, value)

	for field, validators := range rules {
		fv := gjson.GetBytes(raw, field).Value()
		for _, validate := range validators {
			if err := validate(ctx, fv); err != nil {
				res.AddFailure(field, err.Error())
			}
		}
	}

	return res
}

func validateStruct(ctx context.Context, res *ValidationResult, value any) {
	rv := reflect.Indirect(reflect.ValueOf(value))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return
	}

	err := structValidator.StructCtx(ctx, value)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			res.AddFailure("", err.Error())
		}

		return
	}

	for _, fe := range verrs {
		// the namespace starts with the type name, e.g. "Order.lines[0].sku"
		path := strings.Split(fe.Namespace(), ".")[1:]

		node := res
		for _, seg := range path[:len(path)-1] {
			node = node.Child(seg)
		}

		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}

		node.AddFailure(path[len(path)-1], reason)
	}
}
