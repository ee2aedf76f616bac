package bpipe

import (
	"context"
	"encoding/json"
	"mime"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// ErrBodyAlreadySet is returned when a second body guard tries to publish into the same cell.
var ErrBodyAlreadySet = errors.New("bpipe: request body already set")

// BodyOptions configures the header checks that precede reading a request body.
type BodyOptions struct {
	// MaxLength is the maximum body size in bytes. Zero disables the length checks.
	MaxLength int64
	// Accept lists the allowed content types, parameters are not compared. Empty allows any.
	Accept []string
}

// CheckHeaders rejects a request based on its headers alone, before a single byte of the body is read:
// a 400 for a content type not in the allow-list, a 411 for a missing Content-Length and a 413 when it
// exceeds the maximum.
func CheckHeaders(req *IncomingRequest, opts BodyOptions) error {
	if len(opts.Accept) > 0 {
		typ, _, _ := strings.Cut(req.Header().Get("Content-Type"), ";")
		typ = strings.ToLower(strings.TrimSpace(typ))

		if !containsFold(opts.Accept, typ) {
			return Errorf(CodeBadRequest, "Content-Type must be set to (one of) %s.", strings.Join(opts.Accept, ", "))
		}
	}

	if opts.MaxLength > 0 {
		lstr := req.Header().Get("Content-Length")
		if lstr == "" && req.Raw().ContentLength > 0 {
			lstr = strconv.FormatInt(req.Raw().ContentLength, 10)
		}

		if lstr == "" {
			return Errorf(CodeLengthRequired, "Content-Length header field must be set.")
		}

		length, err := strconv.ParseInt(strings.TrimSpace(lstr), 10, 64)
		if err != nil || length < 0 {
			return Errorf(CodeBadRequest, "Content-Length header field is invalid.")
		}

		if length > opts.MaxLength {
			return Errorf(CodeRequestEntityTooLarge, "Content-Length of %d exceeds the limit of %d.", length, opts.MaxLength)
		}
	}

	return nil
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if mt, _, err := mime.ParseMediaType(e); err == nil && mt == s {
			return true
		} else if strings.EqualFold(strings.TrimSpace(e), s) {
			return true
		}
	}

	return false
}

// BodyGuard only checks the headers, see [CheckHeaders].
func BodyGuard(opts BodyOptions) Guard {
	return Service(func(c *Context) (GuardService, error) {
		return GuardServiceFunc(func(context.Context, *ActivatedRoute) (bool, error) {
			if err := CheckHeaders(c.Request(), opts); err != nil {
				return false, err
			}

			return true, nil
		}), nil
	}).Named("body")
}

// RequestBody is the cell through which body guards publish the parsed body to the handler. It is
// written once by the guard and read by everything after it.
type RequestBody[T any] struct {
	raw        []byte
	value      T
	items      []T
	array      bool
	validation *ValidationResult
	set        bool
}

// Raw is the unparsed body.
func (b *RequestBody[T]) Raw() []byte { return b.raw }

// Value is the parsed body, the zero value when the body was an array.
func (b *RequestBody[T]) Value() T { return b.value }

// Items are the parsed elements when the body was an array.
func (b *RequestBody[T]) Items() []T { return b.items }

// IsArray reports whether the body was a json array.
func (b *RequestBody[T]) IsArray() bool { return b.array }

// Validation is the result of validating the body.
func (b *RequestBody[T]) Validation() *ValidationResult { return b.validation }

func (b *RequestBody[T]) publish(raw []byte, value T, items []T, array bool, vres *ValidationResult) error {
	if b.set {
		return ErrBodyAlreadySet
	}

	b.raw, b.value, b.items, b.array, b.validation, b.set = raw, value, items, array, vres, true
	return nil
}

// BodyOf returns the body cell published by a [JSONBodyGuard] or [FormDataBodyGuard] of the same type.
func BodyOf[T any](c *Context) (*RequestBody[T], error) {
	return Resolve[*RequestBody[T]](c)
}

func bodyCell[T any](c *Context) *RequestBody[T] {
	if cell, err := BodyOf[T](c); err == nil && cell != nil {
		return cell
	}

	cell := &RequestBody[T]{}
	Store(c, cell)

	return cell
}

// JSONBodyOptions configures [JSONBodyGuard].
type JSONBodyOptions struct {
	// MaxLength is the maximum body size in bytes.
	MaxLength int64
	// ValidateArray requires the body to be an array and validates every element.
	ValidateArray bool
	// Validators run next to the schema's struct tags, keyed by json field name.
	Validators map[string][]FieldValidator
	// DeferValidation publishes a failed validation instead of rejecting the request with a 422.
	DeferValidation bool
}

// JSONBodyGuard checks the headers, reads the body, parses it as json into T (or []T for arrays) and
// validates it. A malformed body makes the guard decline, which results in a 412. The result is
// published through [BodyOf].
func JSONBodyGuard[T any](opts JSONBodyOptions) Guard {
	return Service(func(c *Context) (GuardService, error) {
		return &jsonBodyGuard[T]{c: c, opts: opts}, nil
	}).Named("json body")
}

type jsonBodyGuard[T any] struct {
	c    *Context
	opts JSONBodyOptions
}

func (g *jsonBodyGuard[T]) CheckGuard(ctx context.Context, _ *ActivatedRoute) (bool, error) {
	if err := CheckHeaders(g.c.Request(), BodyOptions{
		Accept:    []string{"application/json"},
		MaxLength: g.opts.MaxLength,
	}); err != nil {
		return false, err
	}

	raw, err := g.c.Request().Body(ctx)
	if err != nil {
		return false, err
	}

	if !gjson.ValidBytes(raw) {
		return false, nil
	}

	var (
		value T
		items []T
	)

	parsed := gjson.ParseBytes(raw)
	array := parsed.IsArray()

	if g.opts.ValidateArray && !array {
		return false, Errorf(CodeUnprocessableEntity, "expected json array")
	}

	if array {
		err = json.Unmarshal(raw, &items)
	} else {
		err = json.Unmarshal(raw, &value)
	}

	if err != nil {
		return false, nil //nolint:nilerr
	}

	var vres *ValidationResult
	if array {
		vres = NewValidationResult("body")
		elems := parsed.Array()

		for i, item := range items {
			key := strconv.Itoa(i)
			vres.Children = setChild(vres.Children, key,
				Validate(ctx, key, item, []byte(elems[i].Raw), g.opts.Validators))
		}
	} else {
		vres = Validate(ctx, "body", value, raw, g.opts.Validators)
	}

	if !g.opts.DeferValidation && !vres.Valid() {
		return false, Errorf(CodeUnprocessableEntity, "body validation failure").WithPayload(vres)
	}

	return true, bodyCell[T](g.c).publish(raw, value, items, array, vres)
}

func setChild(m map[string]*ValidationResult, key string, res *ValidationResult) map[string]*ValidationResult {
	if m == nil {
		m = map[string]*ValidationResult{}
	}

	m[key] = res
	return m
}

// FormOptions configures [FormDataBodyGuard].
type FormOptions struct {
	// MaxLength is the maximum body size in bytes.
	MaxLength int64
	// Validators run next to the schema's struct tags, keyed by field name.
	Validators map[string][]FieldValidator
	// DeferValidation publishes a failed validation instead of rejecting the request with a 422.
	DeferValidation bool
}

// FormDataBodyGuard is the url-encoded form variant of [JSONBodyGuard]. Values are coerced to the
// field types of T before validation, "null" becomes the zero value and dates are read as RFC 3339.
func FormDataBodyGuard[T any](opts FormOptions) Guard {
	return Service(func(c *Context) (GuardService, error) {
		return &formBodyGuard[T]{c: c, opts: opts}, nil
	}).Named("form body")
}

type formBodyGuard[T any] struct {
	c    *Context
	opts FormOptions
}

func (g *formBodyGuard[T]) CheckGuard(ctx context.Context, _ *ActivatedRoute) (bool, error) {
	if err := CheckHeaders(g.c.Request(), BodyOptions{
		Accept:    []string{"application/x-www-form-urlencoded"},
		MaxLength: g.opts.MaxLength,
	}); err != nil {
		return false, err
	}

	raw, err := g.c.Request().Body(ctx)
	if err != nil {
		return false, err
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return false, Errorf(CodeBadRequest, "malformed form data: %v", err)
	}

	value, fields, err := decodeValues[T](form)
	if err != nil {
		return false, NewError(CodeBadRequest, err)
	}

	vres := Validate(ctx, "body", value, fields, g.opts.Validators)
	if !g.opts.DeferValidation && !vres.Valid() {
		return false, Errorf(CodeUnprocessableEntity, "body validation failure").WithPayload(vres)
	}

	return true, bodyCell[T](g.c).publish(raw, value, nil, false, vres)
}

// decodeValues coerces url values into T. It also returns the result in json form, for the lookup of
// fields by the extra validators.
func decodeValues[T any](vals url.Values) (res T, fields []byte, err error) {
	in := make(map[string]any, len(vals))
	for k, vs := range vals {
		if len(vs) == 1 {
			in[k] = vs[0]
		} else {
			in[k] = vs
		}
	}

	if asMap, ok := any(&res).(*map[string]any); ok {
		*asMap = in
	} else {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       coerceStringHook,
			WeaklyTypedInput: true,
			TagName:          "json",
			Result:           &res,
		})
		if err != nil {
			return res, nil, errors.Wrap(err, "init decoder")
		}

		if err := dec.Decode(in); err != nil {
			return res, nil, errors.Wrap(err, "decode values")
		}
	}

	if fields, err = json.Marshal(res); err != nil {
		return res, nil, errors.Wrap(err, "encode decoded values")
	}

	return res, fields, nil
}

var timeType = reflect.TypeFor[time.Time]()

// coerceStringHook decodes "null" as nil or the zero value for every field that is not a string, and
// dates as RFC 3339. Other conversions are left to the weakly typed decoding.
func coerceStringHook(_, to reflect.Type, data any) (any, error) {
	s, ok := data.(string)
	if !ok {
		return data, nil
	}

	switch {
	case s == "null" && to.Kind() == reflect.Ptr:
		return nil, nil
	case s == "null" && to.Kind() != reflect.String:
		return reflect.Zero(to).Interface(), nil
	case to == timeType:
		t, err := time.Parse(time.RFC3339, s)
		return t, errors.Wrapf(err, "parse date %q", s)
	default:
		return data, nil
	}
}
