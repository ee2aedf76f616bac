package bapp

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into handler constructors via fx instead of pulling from context.
//
//	func NewHandlers(rt *bapp.Runtime[Env], dynamo *dynamodb.Client) *Handlers {
//	    return &Handlers{rt: rt, dynamo: dynamo}
//	}
type Runtime[E Environment] struct {
	env          E
	mux          *Mux
	secretReader SecretReader
	transport    http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	SecretReader SecretReader
	Transport    http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, mux *Mux, params RuntimeParams) *Runtime[E] {
	return &Runtime[E]{
		env:          env,
		mux:          mux,
		secretReader: params.SecretReader,
		transport:    params.Transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the URL for a named route with the given parameters.
func (r *Runtime[E]) Reverse(name string, params ...string) (string, error) {
	return r.mux.Reverse(name, params...)
}

// Secret retrieves a secret value from AWS Secrets Manager. If jsonPath is provided the secret is
// parsed as JSON and the path is extracted using gjson syntax (e.g. "database.password").
//
// Secrets are cached but fetched per-request to support rotation without redeployment.
func (r *Runtime[E]) Secret(ctx context.Context, secretID string, jsonPath ...string) (string, error) {
	if r.secretReader == nil {
		return "", errors.New("bapp: secret reader not configured")
	}
	return secretFromReader(ctx, r.secretReader, secretID, jsonPath...)
}

// NewRequest starts an outbound request with trace propagation, see [requests.Builder].
func (r *Runtime[E]) NewRequest(baseURL string) *requests.Builder {
	transport := r.transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return newRequestBuilder(transport, r.env.serviceName()).BaseURL(baseURL)
}
