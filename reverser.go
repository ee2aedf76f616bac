package bpipe

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Reverser keeps track of named patterns and allows building URLs.
type Reverser struct {
	pats map[string]*routePattern
}

// NewReverser inits the reverser.
func NewReverser() *Reverser {
	return &Reverser{make(map[string]*routePattern)}
}

// Reverse reverses the named pattern into a url.
func (r Reverser) Reverse(name string, vals ...string) (string, error) {
	pat, ok := r.pats[name]
	if !ok {
		return "", errors.Newf("no pattern named: %q, got: %v", name, lo.Keys(r.pats))
	}

	res, err := pat.build(vals...)
	if err != nil {
		return "", errors.Wrap(err, "failed to build")
	}

	return res, nil
}

// Named is a convenience method that panics if naming the pattern fails.
func (r Reverser) Named(name, str string) string {
	str, err := r.NamedPattern(name, str)
	if err != nil {
		panic("bpipe: " + err.Error())
	}

	return str
}

// NamedPattern will parse 's' as a path pattern while returning it as well.
func (r Reverser) NamedPattern(name, str string) (string, error) {
	if _, exists := r.pats[name]; exists {
		return str, errors.Newf("pattern with name %q already exists", name)
	}

	pat, err := parsePattern(str)
	if err != nil {
		return str, errors.Wrap(err, "failed to parse pattern")
	}

	r.pats[name] = pat

	return str, nil
}

// routePattern is a standard library mux pattern: "[METHOD ][HOST]/[PATH]" where path segments may be
// wildcards of the form {name}, {name...} or {$}.
type routePattern struct {
	method   string
	segments []patternSegment
	trailing bool
}

type patternSegment struct {
	literal  string
	wildcard string
	multi    bool
}

func parsePattern(s string) (*routePattern, error) {
	pat := &routePattern{}

	rest := strings.TrimSpace(s)
	if rest == "" {
		return nil, errors.New("empty pattern")
	}

	if method, path, ok := strings.Cut(rest, " "); ok {
		pat.method, rest = method, strings.TrimLeft(path, " \t")
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return nil, errors.Newf("pattern %q has no path", s)
	}

	path := rest[slash:]
	pat.trailing = strings.HasSuffix(path, "/")

	seen := map[string]bool{}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}

		if !strings.HasPrefix(seg, "{") {
			pat.segments = append(pat.segments, patternSegment{literal: seg})
			continue
		}

		if !strings.HasSuffix(seg, "}") {
			return nil, errors.Newf("pattern %q: bad wildcard segment %q", s, seg)
		}

		name := seg[1 : len(seg)-1]
		if name == "$" {
			pat.trailing = true
			continue
		}

		ps := patternSegment{}
		ps.wildcard, ps.multi = strings.CutSuffix(name, "...")
		if ps.wildcard == "" || seen[ps.wildcard] {
			return nil, errors.Newf("pattern %q: bad or duplicate wildcard %q", s, name)
		}

		seen[ps.wildcard] = true
		pat.segments = append(pat.segments, ps)
	}

	return pat, nil
}

// wildcards returns the names of the wildcards in order.
func (p *routePattern) wildcards() []string {
	return lo.FilterMap(p.segments, func(s patternSegment, _ int) (string, bool) {
		return s.wildcard, s.wildcard != ""
	})
}

func (p *routePattern) build(vals ...string) (string, error) {
	switch want := len(p.wildcards()); {
	case len(vals) < want:
		return "", errors.Newf("not enough values, want %d got: %d", want, len(vals))
	case len(vals) > want:
		return "", errors.Newf("too many values, want %d got: %d", want, len(vals))
	}

	var b strings.Builder

	i := 0
	for _, seg := range p.segments {
		b.WriteByte('/')

		switch {
		case seg.wildcard == "":
			b.WriteString(seg.literal)
		case seg.multi:
			b.WriteString(strings.Join(lo.Map(strings.Split(vals[i], "/"), func(s string, _ int) string {
				return url.PathEscape(s)
			}), "/"))
			i++
		default:
			b.WriteString(url.PathEscape(vals[i]))
			i++
		}
	}

	if b.Len() == 0 || p.trailing {
		b.WriteByte('/')
	}

	return b.String(), nil
}
