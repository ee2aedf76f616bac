package bpipe

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Weighted is a value from a header with quality values, e.g. "gzip;q=0.8".
type Weighted struct {
	Value string
	Q     float64
}

// ParseWeighted parses a comma separated list of values with optional q-weights, sorted by descending
// weight. Values without a weight have a weight of 1.
func ParseWeighted(hdr string) []Weighted {
	var out []Weighted

	for _, part := range strings.Split(hdr, ",") {
		val, params, _ := strings.Cut(part, ";")
		if val = strings.ToLower(strings.TrimSpace(val)); val == "" {
			continue
		}

		w := Weighted{Value: val, Q: 1}
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.TrimSpace(k) != "q" {
				continue
			}

			if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				w.Q = q
			}
		}

		out = append(out, w)
	}

	slices.SortStableFunc(out, func(a, b Weighted) int {
		switch {
		case a.Q > b.Q:
			return -1
		case a.Q < b.Q:
			return 1
		default:
			return 0
		}
	})

	return out
}

// AcceptEncoding negotiates the content encoding of the response.
type AcceptEncoding struct {
	accepted []Weighted
}

// NewAcceptEncoding parses the Accept-Encoding header, a missing header or "*" accepts identity only.
func NewAcceptEncoding(req *IncomingRequest) *AcceptEncoding {
	hdr := req.Header().Get("Accept-Encoding")
	if hdr == "" || strings.TrimSpace(hdr) == "*" {
		return &AcceptEncoding{accepted: []Weighted{{Value: "identity", Q: 1}}}
	}

	return &AcceptEncoding{accepted: ParseWeighted(hdr)}
}

// Accepted returns the parsed encodings, by descending weight.
func (a *AcceptEncoding) Accepted() []Weighted { return a.accepted }

// Accepts reports whether enc is acceptable to the client.
func (a *AcceptEncoding) Accepts(enc string) bool {
	return slices.ContainsFunc(a.accepted, func(w Weighted) bool {
		return w.Q > 0 && (w.Value == strings.ToLower(enc) || w.Value == "*")
	})
}

// BestMatch returns the available encoding with the highest weight, the first available one if none is
// accepted.
func (a *AcceptEncoding) BestMatch(available ...string) string {
	if len(available) < 1 {
		return ""
	}

	for _, w := range a.accepted {
		if w.Q <= 0 {
			continue
		}

		for _, enc := range available {
			if strings.ToLower(enc) == w.Value {
				return enc
			}
		}
	}

	return available[0]
}

// AcceptLanguage negotiates the language of the response.
type AcceptLanguage struct {
	tags []language.Tag
}

// NewAcceptLanguage parses the Accept-Language header, a missing header or "*" prefers english.
func NewAcceptLanguage(req *IncomingRequest) *AcceptLanguage {
	hdr := strings.TrimSpace(req.Header().Get("Accept-Language"))
	if hdr == "" || hdr == "*" {
		return &AcceptLanguage{tags: []language.Tag{language.English}}
	}

	tags, _, err := language.ParseAcceptLanguage(hdr)
	if err != nil || len(tags) < 1 {
		return &AcceptLanguage{tags: []language.Tag{language.English}}
	}

	return &AcceptLanguage{tags: tags}
}

// Preferred returns the languages of the client by descending weight.
func (a *AcceptLanguage) Preferred() []language.Tag { return a.tags }

// BestMatch returns the available language that best matches the client's preferences, the first
// available one if nothing matches.
func (a *AcceptLanguage) BestMatch(available ...string) string {
	if len(available) < 1 {
		return ""
	}

	supported := make([]language.Tag, 0, len(available))
	for _, s := range available {
		supported = append(supported, language.Make(s))
	}

	_, idx, conf := language.NewMatcher(supported).Match(a.tags...)
	if conf == language.No {
		return available[0]
	}

	return available[idx]
}
