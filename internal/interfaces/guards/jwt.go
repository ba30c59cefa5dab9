package guards

import (
	"strings"

	"gnest/internal/infra/gnest"
	"gnest/internal/pkg/token"
)

// PublicKey marks routes that skip JwtAuthGuard.
const PublicKey = "auth:public"

func Public() gnest.Metadata { return gnest.SetMetadata(PublicKey, true) }

// JwtAuthGuard verifies the Bearer token and sets its claims as the principal.
type JwtAuthGuard struct {
	Tokens *token.Service
}

func NewJwtAuthGuard(tokens *token.Service) *JwtAuthGuard {
	return &JwtAuthGuard{Tokens: tokens}
}

func (g *JwtAuthGuard) CanActivate(ctx *gnest.ExecutionContext) (bool, error) {
	if public, _ := ctx.Metadata(PublicKey).(bool); public {
		return true, nil
	}
	raw, ok := bearer(ctx.Headers().Get("Authorization"))
	if !ok {
		return false, gnest.Unauthorized("Token must be not empty")
	}
	claims, err := g.Tokens.Parse(raw)
	if err != nil {
		return false, gnest.Unauthorized("Invalid or expired token")
	}
	ctx.SetPrincipal(claims)
	return true, nil
}

func bearer(h string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
