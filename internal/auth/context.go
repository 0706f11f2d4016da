package auth

import "context"

type tokenKey struct{}

// ContextWithToken carries the caller's raw token down to outbound clients.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}
