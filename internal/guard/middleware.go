package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/teamauth/internal/session"
)

// Middleware applies the pipeline to page navigations, turning redirect
// verdicts into 302 responses.
func Middleware(p *Pipeline, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := sessions.ReadToken(c)
		decision := p.Resolve(c.Request.Context(), token, Navigation{
			Path:     c.Request.URL.Path,
			RawQuery: c.Request.URL.RawQuery,
		})
		if !decision.Allow {
			c.Redirect(http.StatusFound, decision.RedirectTo)
			c.Abort()
			return
		}
		c.Next()
	}
}
