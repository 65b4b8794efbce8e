package handlers

import (
	"database/sql"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/config"
	"jwt-cookie-ws/internal/denylist"
	"jwt-cookie-ws/internal/metrics"
	ws "jwt-cookie-ws/pkg/websocket"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	DB         *sql.DB
	Config     config.Config
	Authorizer *auth.Authorizer
	Issuer     *auth.Issuer
	Metrics    *metrics.Metrics

	// Denylist receives revocations on logout. Nil when revocation is off.
	Denylist denylist.Store

	// Hubs returns the currently active hub; it may be swapped after a panic.
	Hubs func() (*ws.Hub, bool)
}

func (d Deps) hub() *ws.Hub {
	if d.Hubs == nil {
		return nil
	}
	h, ok := d.Hubs()
	if !ok {
		return nil
	}
	return h
}
