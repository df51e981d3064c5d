package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-query-builder/pkg/auth"
	httpauth "github.com/txn2/mcp-query-builder/pkg/http"
)

// AuthMiddleware authenticates every tools/call request and attaches the
// resulting user to the handler context. The token is taken from the
// context, then from the HTTP headers of a streamable request, and finally
// falls back to sessionToken, as on stdio.
func AuthMiddleware(a auth.Authenticator, sessionToken string) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != "tools/call" {
				return next(ctx, method, req)
			}

			if token := requestToken(ctx, req, sessionToken); token != "" {
				ctx = auth.WithToken(ctx, token)
			}

			uc, err := a.Authenticate(ctx)
			if err != nil || uc == nil {
				return textResult("authentication failed", true), nil
			}
			return next(auth.WithUserContext(ctx, uc), method, req)
		}
	}
}

func requestToken(ctx context.Context, req mcp.Request, sessionToken string) string {
	if token := auth.GetToken(ctx); token != "" {
		return token
	}
	if req != nil {
		if extra := req.GetExtra(); extra != nil && extra.Header != nil {
			if token := httpauth.TokenFromHeader(extra.Header); token != "" {
				return token
			}
		}
	}
	return sessionToken
}
