package lenderapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// TokenSource yields the bearer token for an outgoing request.
type TokenSource func(ctx context.Context) string

// StaticToken is a TokenSource for service-to-service use.
func StaticToken(token string) TokenSource {
	return func(context.Context) string { return token }
}

type requestIDKey struct{}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// AuthTransport stamps the bearer token and a request id on every request.
type AuthTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func NewAuthTransport(base http.RoundTripper, tokens TokenSource) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{base: base, tokens: tokens}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get("Authorization") == "" && t.tokens != nil {
		if token := strings.TrimSpace(t.tokens(req.Context())); token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if out.Header.Get(RequestIDHeader) == "" {
		id := RequestIDFromContext(req.Context())
		if id == "" {
			id = uuid.NewString()
		}
		out.Header.Set(RequestIDHeader, id)
	}
	return t.base.RoundTrip(out)
}
