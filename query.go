package bpipe

import (
	"context"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// RequestQuery is the cell through which query guards publish the coerced query to the handler.
type RequestQuery[T any] struct {
	raw        url.Values
	value      T
	validation *ValidationResult
}

// Raw is the query as parsed from the url.
func (q *RequestQuery[T]) Raw() url.Values { return q.raw }

// Value is the coerced query.
func (q *RequestQuery[T]) Value() T { return q.value }

// Validation is the result of validating the query, nil for definition based guards.
func (q *RequestQuery[T]) Validation() *ValidationResult { return q.validation }

// QueryOf returns the query published by a [QueryGuard] (use map[string]any) or a [QuerySchemaGuard].
func QueryOf[T any](c *Context) (*RequestQuery[T], error) {
	return Resolve[*RequestQuery[T]](c)
}

// QueryParam defines a single query field for [QueryGuard].
type QueryParam struct {
	// Required rejects the request when the field is missing or empty.
	Required bool
	// Match is tested against the value before coercion.
	Match *regexp.Regexp
	// Default is used as if it was sent by the client.
	Default string
	// Coerce converts the value, applied to every element when the field is repeated.
	Coerce func(string) (any, error)
}

// QueryGuard checks and coerces the query according to defs. Every failing field is reported in a
// single 400 with a payload of the form {"queryError": {field: reason}}.
func QueryGuard(defs map[string]QueryParam) Guard {
	keys := lo.Keys(defs)
	slices.Sort(keys)

	return Service(func(c *Context) (GuardService, error) {
		return GuardServiceFunc(func(context.Context, *ActivatedRoute) (bool, error) {
			raw := c.Request().Query()
			out := make(map[string]any, len(defs))

			var msgs []string
			reasons := map[string]string{}

			for _, k := range keys {
				def, vals := defs[k], raw[k]
				present := len(vals) > 0 && vals[0] != ""

				if !present && def.Default != "" {
					vals = []string{def.Default}
				}

				if def.Required && !present {
					reasons[k] = "required"
					msgs = append(msgs, "Query field \""+k+"\" is required.")
					continue
				}

				if def.Match != nil && present && !lo.EveryBy(raw[k], def.Match.MatchString) {
					reasons[k] = "patternMismatch"
					msgs = append(msgs, "Query field \""+k+"\" doesn't match "+def.Match.String()+".")
					continue
				}

				if len(vals) < 1 {
					continue
				}

				val, err := coerceQueryValues(def, vals)
				if err != nil {
					reasons[k] = "invalid"
					msgs = append(msgs, "Query field \""+k+"\" is invalid: "+err.Error())
					continue
				}

				out[k] = val
			}

			if len(msgs) > 0 {
				return false, NewError(CodeBadRequest, errors.New(strings.Join(msgs, "\n"))).
					WithPayload(map[string]any{"queryError": reasons})
			}

			Store(c, &RequestQuery[map[string]any]{raw: raw, value: out})
			return true, nil
		}), nil
	}).Named("query")
}

func coerceQueryValues(def QueryParam, vals []string) (any, error) {
	coerce := def.Coerce
	if coerce == nil {
		coerce = func(s string) (any, error) { return s, nil }
	}

	if len(vals) == 1 {
		return coerce(vals[0])
	}

	out := make([]any, 0, len(vals))
	for _, v := range vals {
		cv, err := coerce(v)
		if err != nil {
			return nil, err
		}

		out = append(out, cv)
	}

	return out, nil
}

// QuerySchemaOptions configures [QuerySchemaGuard].
type QuerySchemaOptions struct {
	// Validators run next to the schema's struct tags, keyed by field name.
	Validators map[string][]FieldValidator
	// DeferValidation publishes a failed validation instead of rejecting the request with a 422.
	DeferValidation bool
}

// QuerySchemaGuard coerces the query into T, the same way [FormDataBodyGuard] does for forms, and
// validates it. Validation failures are rejected with a 422 carrying the [ValidationResult].
func QuerySchemaGuard[T any](opts QuerySchemaOptions) Guard {
	return Service(func(c *Context) (GuardService, error) {
		return GuardServiceFunc(func(ctx context.Context, _ *ActivatedRoute) (bool, error) {
			raw := c.Request().Query()

			value, fields, err := decodeValues[T](raw)
			if err != nil {
				return false, NewError(CodeBadRequest, err)
			}

			vres := Validate(ctx, "query", value, fields, opts.Validators)
			if !opts.DeferValidation && !vres.Valid() {
				return false, Errorf(CodeUnprocessableEntity, "query validation failure").WithPayload(vres)
			}

			Store(c, &RequestQuery[T]{raw: raw, value: value, validation: vres})
			return true, nil
		}), nil
	}).Named("query schema")
}
