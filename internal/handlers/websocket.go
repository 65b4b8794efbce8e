package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/config"
	"jwt-cookie-ws/internal/logging"
	"jwt-cookie-ws/internal/metrics"
	"jwt-cookie-ws/internal/middleware"
	"jwt-cookie-ws/internal/tracing"
	ws "jwt-cookie-ws/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	msgLoginOK      = "Successfully Login!"
	msgDecodedToken = "Here your decoded token: "
)

// OriginPolicy decides which browser origins may open a socket. Requests
// without an Origin header come from non-browser clients and are allowed.
type OriginPolicy struct {
	dev      bool
	allowAll bool
	allowed  map[string]bool
}

func NewOriginPolicy(cfg config.Config) OriginPolicy {
	p := OriginPolicy{
		dev:      cfg.IsDev(),
		allowAll: cfg.IsDev() && cfg.DevWebSocketsAllowAll,
		allowed:  map[string]bool{},
	}
	for _, o := range cfg.WSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			p.allowed[o] = true
		}
	}
	return p
}

func (p OriginPolicy) Check(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	switch {
	case origin == "":
		return true
	case p.allowAll:
		return true
	case p.dev && middleware.IsLoopbackOrigin(origin):
		return true
	default:
		return p.allowed[origin]
	}
}

// WSOptions selects the token a socket endpoint requires.
type WSOptions struct {
	Required     auth.TokenType
	RequireFresh bool
	Optional     bool
}

// WebSocketHandler upgrades first and authorizes afterwards, so every outcome
// reaches the client as a text frame: the failure message followed by a close,
// or the login confirmation followed by the decoded claims.
func WebSocketHandler(d Deps, opts WSOptions) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     NewOriginPolicy(d.Config).Check,
	}
	required := opts.Required
	if required == "" {
		required = auth.TypeAccess
	}
	settings := d.Authorizer.Settings()
	cookieName := settings.Cookies.TokenCookieName(required)

	return func(c *gin.Context) {
		log := logging.FromContext(c.Request.Context())

		hub := d.hub()
		if hub == nil {
			log.Error("websocket: no active hub")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
			return
		}

		// Read everything from the handshake before it is hijacked.
		cookie, _ := c.Cookie(cookieName)
		req := auth.Request{
			TokenCookie:  cookie,
			CSRF:         c.Query(auth.CSRFQueryParam),
			Required:     required,
			RequireFresh: opts.RequireFresh,
			Optional:     opts.Optional,
			Transport:    auth.TransportWebSocket,
		}
		if settings.TokenLocation.Headers() {
			req.HeaderToken = middleware.BearerToken(c.GetHeader("Authorization"))
			if req.HeaderToken == "" {
				req.HeaderToken = c.Query(auth.TokenQueryParam)
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed",
				zap.String("origin", c.GetHeader("Origin")),
				zap.Error(err),
			)
			return
		}

		client := ws.NewClient(conn, hub)
		log = log.With(zap.String("client_id", client.ID))
		ac, ok := authorizeSession(c.Request.Context(), d, client, req, log)
		if !ok {
			return
		}

		d.Metrics.WSSessionsActive.Inc()
		go client.WritePump()
		go func() {
			defer d.Metrics.WSSessionsActive.Dec()
			client.ReadPump(func(msg []byte) {
				handleSessionMessage(client, ac, msg, log)
			})
			log.Debug("websocket session closed", zap.String("subject", ac.Subject()))
		}()
	}
}

// authorizeSession drives a freshly upgraded client through Authorizing to
// Authorized or Rejected. It reports whether the session may proceed.
func authorizeSession(ctx context.Context, d Deps, client *ws.Client, req auth.Request, log *zap.Logger) (*auth.AuthorizationContext, bool) {
	if err := client.BeginAuthorization(); err != nil {
		log.Error("websocket state", zap.Error(err))
		client.Abort()
		return nil, false
	}

	if t := d.Config.WSAuthTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "auth.websocket")
	ac, err := d.Authorizer.Authorize(ctx, req)

	kindLabel := ""
	if kind, ok := auth.KindOf(err); ok {
		kindLabel = kind.String()
	}
	d.Metrics.WSAuthorizations.WithLabelValues(metrics.Result(kindLabel, err == nil)).Inc()
	tracing.EndAuthSpan(span, ac.Subject(), kindLabel, err)

	var ae *auth.Error
	switch {
	case errors.As(err, &ae):
		log.Info("websocket rejected", zap.String("reason", kindLabel))
		if werr := client.Reject(ae.Message); werr != nil {
			log.Debug("websocket reject write", zap.Error(werr))
		}
		return nil, false
	case err != nil:
		log.Error("websocket authorization error", zap.Error(err))
		client.Abort()
		return nil, false
	}

	decoded, err := json.Marshal(ac.Claims)
	if err != nil {
		log.Error("websocket claims marshal", zap.Error(err))
		client.Abort()
		return nil, false
	}
	// The login frames must precede any broadcast to the subject's room.
	if err := client.Authorize(ac.Subject(), []byte(msgLoginOK), append([]byte(msgDecodedToken), decoded...)); err != nil {
		log.Error("websocket state", zap.Error(err))
		client.Abort()
		return nil, false
	}
	log.Info("websocket authorized",
		zap.String("subject", ac.Subject()),
		zap.String("location", ac.Location),
		zap.Bool("anonymous", ac.Anonymous),
	)
	return ac, true
}

type inboundMessage struct {
	Type string `json:"type"`
}

// handleSessionMessage serves an authorized session: "claims" returns the
// decoded token, "ping" answers "pong", anything else is echoed back.
func handleSessionMessage(client *ws.Client, ac *auth.AuthorizationContext, msg []byte, log *zap.Logger) {
	var in inboundMessage
	_ = json.Unmarshal(msg, &in)

	var out []byte
	var err error
	switch in.Type {
	case "claims":
		out, err = ws.Envelope("claims", ac.Claims)
	case "ping":
		out, err = ws.Envelope("pong", nil)
	default:
		out = msg
	}
	if err != nil {
		log.Warn("websocket marshal", zap.Error(err))
		return
	}
	if err := client.Enqueue(out); err != nil {
		log.Debug("websocket send drop", zap.Error(err))
	}
}
