package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/sysutil"
)

// HeaderIdentityToken carries the optional client identity token.
const HeaderIdentityToken = "X-Identity-Token"

const ctxKeyFingerprint = "fingerprint"

// bodyToken is the part of a JSON body that may carry the identity token.
// clientId is the name the legacy page uses.
type bodyToken struct {
	IdentityToken string `json:"identityToken"`
	ClientID      string `json:"clientId"`
}

// Identify derives the caller's fingerprint from the client address (as
// resolved by gin's trusted-proxy rules) and stores it for handlers, the
// idempotency validator, and the rate limiter. The raw address is never
// stored in the context.
//
// The token comes from the X-Identity-Token header. On the routes listed in
// bodyTokenRoutes (full route paths) a JSON body may carry it instead, as
// identityToken or clientId; the body is cached with ShouldBindBodyWith so
// handlers bind it again the same way. Tokens only matter when fpr mixes them
// in, so the body is not read otherwise.
func Identify(fpr *identity.Fingerprinter, bodyTokenRoutes ...string) gin.HandlerFunc {
	routes := make(map[string]struct{}, len(bodyTokenRoutes))
	for _, r := range bodyTokenRoutes {
		routes[r] = struct{}{}
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(HeaderIdentityToken))
		if token == "" && fpr.MixesToken() {
			if _, ok := routes[c.FullPath()]; ok && c.ContentType() == binding.MIMEJSON {
				var bt bodyToken
				if err := c.ShouldBindBodyWith(&bt, binding.JSON); err == nil {
					token = strings.TrimSpace(sysutil.FirstNonEmpty(bt.IdentityToken, bt.ClientID))
				}
			}
		}
		if fp, err := fpr.Fingerprint(c.ClientIP(), token); err == nil {
			c.Set(ctxKeyFingerprint, fp)
		}
		c.Next()
	}
}

// FingerprintFrom returns the fingerprint set by Identify, or "".
func FingerprintFrom(c *gin.Context) string {
	v, _ := c.Get(ctxKeyFingerprint)
	return asString(v)
}
