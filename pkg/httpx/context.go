package httpx

import (
	"context"

	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeySubject  ctxKey = "subject"
	CtxKeyClientID ctxKey = "client_id"
	CtxKeyClaims   ctxKey = "claims"
)

// ContextWithClaims injects verified access token claims.
func ContextWithClaims(ctx context.Context, c *jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubject, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClientID, c.ClientID())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// ClaimsFromContext returns the verified claims, if the request carried a
// valid bearer token.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(*jwtx.Claims)
	return c, ok
}

// SubjectFromContext returns the verified subject or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(CtxKeySubject).(string)
	return s
}

// ClientIDFromContext returns the verified client id or "".
func ClientIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(CtxKeyClientID).(string)
	return s
}
