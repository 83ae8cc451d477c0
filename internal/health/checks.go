package health

import (
	"context"

	"github.com/nearobot/wallet/internal/conn"
	"github.com/nearobot/wallet/internal/store"
)

// StoreCheck reports the SQLite store's liveness.
func StoreCheck(st *store.Store) CheckFunc {
	return func(ctx context.Context) Status {
		if err := st.Ping(); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// ConnCheck reports the relay connection's phase. A connection mid-retry
// is degraded, not down: the process itself is still healthy.
func ConnCheck(m *conn.Manager) CheckFunc {
	return func(ctx context.Context) Status {
		switch m.Phase() {
		case conn.PhaseOpen:
			return StatusOK
		case conn.PhaseClosedFatal:
			return StatusDown
		default:
			return StatusDegraded
		}
	}
}
