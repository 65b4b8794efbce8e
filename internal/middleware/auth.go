package middleware

import (
	"errors"
	"net/http"
	"strings"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/logging"
	"jwt-cookie-ws/internal/metrics"
	"jwt-cookie-ws/internal/tracing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const authContextKey = "authContext"

// AuthOptions selects which token a route accepts.
type AuthOptions struct {
	Required     auth.TokenType
	RequireFresh bool
	Optional     bool
}

func RequireAuth(a *auth.Authorizer, m *metrics.Metrics, opts AuthOptions) gin.HandlerFunc {
	required := opts.Required
	if required == "" {
		required = auth.TypeAccess
	}
	cookieName := a.Settings().Cookies.TokenCookieName(required)

	return func(c *gin.Context) {
		ctx, span := tracing.StartSpan(c.Request.Context(), "auth.http")
		cookie, _ := c.Cookie(cookieName)
		ac, err := a.Authorize(ctx, auth.Request{
			TokenCookie:  cookie,
			CSRF:         c.GetHeader(auth.CSRFHeaderName),
			HeaderToken:  BearerToken(c.GetHeader("Authorization")),
			Required:     required,
			RequireFresh: opts.RequireFresh,
			Optional:     opts.Optional,
			Transport:    auth.TransportHTTP,
			Method:       c.Request.Method,
		})
		kind, isAuthErr := auth.KindOf(err)
		kindLabel := ""
		if isAuthErr {
			kindLabel = kind.String()
		}
		m.HTTPAuthorizations.WithLabelValues(metrics.Result(kindLabel, err == nil)).Inc()
		tracing.EndAuthSpan(span, ac.Subject(), kindLabel, err)

		if err != nil {
			WriteAuthError(c, err)
			return
		}
		c.Set(authContextKey, ac)
		c.Next()
	}
}

// RequireFresh accepts only fresh access tokens, i.e. ones minted by a login.
func RequireFresh(a *auth.Authorizer, m *metrics.Metrics) gin.HandlerFunc {
	return RequireAuth(a, m, AuthOptions{Required: auth.TypeAccess, RequireFresh: true})
}

func RequireRefresh(a *auth.Authorizer, m *metrics.Metrics) gin.HandlerFunc {
	return RequireAuth(a, m, AuthOptions{Required: auth.TypeRefresh})
}

// AuthContext returns what RequireAuth stored for this request.
func AuthContext(c *gin.Context) (*auth.AuthorizationContext, bool) {
	v, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	ac, ok := v.(*auth.AuthorizationContext)
	return ac, ok && ac != nil
}

// WriteAuthError aborts with the failure message for authorization errors and
// a generic 500 for anything else.
func WriteAuthError(c *gin.Context, err error) {
	var ae *auth.Error
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(ae.Kind.HTTPStatus(), gin.H{"detail": ae.Message})
		return
	}
	logging.FromContext(c.Request.Context()).Error("authorization error", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(authz string) string {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
