package mcpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
)

// tokenLifetime is the expiry reported for a verified static token. The
// token never actually expires; it is re-checked on every request.
const tokenLifetime = time.Hour

// RequireBearer rejects requests that do not carry token as a bearer
// credential with 401 Unauthorized.
func RequireBearer(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	verify := func(_ context.Context, got string, _ *http.Request) (*auth.TokenInfo, error) {
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return nil, fmt.Errorf("mcpserver: bearer token mismatch: %w", auth.ErrInvalidToken)
		}
		return &auth.TokenInfo{Expiration: time.Now().Add(tokenLifetime)}, nil
	}
	return auth.RequireBearerToken(verify, nil)
}
