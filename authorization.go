package bpipe

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Authorization is the parsed Authorization header. Configured with a challenge, it is a [Modifier]
// that turns the response into a 401 with a WWW-Authenticate header.
type Authorization struct {
	scheme    string
	token     string
	challenge *Challenge
}

// Challenge configures the WWW-Authenticate header.
type Challenge struct {
	Scheme  string
	Realm   string
	Charset string
}

// AuthorizationOf returns the authorization of the request, registered as modifier on first use.
func AuthorizationOf(c *Context) *Authorization {
	return modifierOf(c, func(c *Context) *Authorization { return NewAuthorization(c.Request()) })
}

// NewAuthorization parses the Authorization header of the request. The scheme is lowercased and the
// token unquoted.
func NewAuthorization(req *IncomingRequest) *Authorization {
	hdr := strings.TrimSpace(req.Header().Get("Authorization"))
	if hdr == "" {
		return &Authorization{}
	}

	scheme, token, _ := strings.Cut(hdr, " ")
	token = strings.TrimSpace(token)
	if len(token) > 1 && token[0] == '"' && token[len(token)-1] == '"' {
		token = token[1 : len(token)-1]
	}

	return &Authorization{scheme: strings.ToLower(scheme), token: token}
}

// Scheme is the lowercased scheme, e.g. "basic" or "bearer".
func (a *Authorization) Scheme() string { return a.scheme }

// Token is the value after the scheme.
func (a *Authorization) Token() string { return a.token }

// Valid reports whether the header was present.
func (a *Authorization) Valid() bool { return a.scheme != "" }

// BasicCredentials decodes the token of a basic scheme.
func (a *Authorization) BasicCredentials() (username, password string, ok bool) {
	if a.scheme != "basic" {
		return "", "", false
	}

	dec, err := base64.StdEncoding.DecodeString(a.token)
	if err != nil {
		return "", "", false
	}

	username, password, ok = strings.Cut(string(dec), ":")
	return username, password, ok
}

func (ch Challenge) String() string {
	return fmt.Sprintf(`%s realm="%s", charset=%s`, ch.Scheme, ch.Realm, strings.ToUpper(ch.Charset))
}

// Challenge makes the response a 401 that asks for credentials. Empty fields default to the basic
// scheme, the "Default" realm and utf-8.
func (a *Authorization) Challenge(ch Challenge) *Authorization {
	ch = ch.withDefaults()
	a.challenge = &ch

	return a
}

func (ch Challenge) withDefaults() Challenge {
	if ch.Scheme == "" {
		ch.Scheme = "Basic"
	}

	if ch.Realm == "" {
		ch.Realm = "Default"
	}

	if ch.Charset == "" {
		ch.Charset = "utf-8"
	}

	return ch
}

// ModifyResponse implements [Modifier].
func (a *Authorization) ModifyResponse(_ context.Context, res *OutgoingResponse) error {
	if a.challenge == nil {
		return nil
	}

	if err := res.SetStatus(http.StatusUnauthorized); err != nil {
		return err
	}

	return res.SetHeader("WWW-Authenticate", a.challenge.String())
}
