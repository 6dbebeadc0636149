package main

import (
	"net/http"

	"github.com/segmentio/encoding/json"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/model"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/monitor"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/store"
)

type statusSource interface {
	Status() monitor.Status
}

type pipelineSource interface {
	Stats() dispatch.Stats
	Consumers() []string
}

type healthResponse struct {
	Status        string         `json:"status"`
	Lifecycle     string         `json:"lifecycle"`
	Connection    string         `json:"connection"`
	Subscriptions int            `json:"subscriptions"`
	LedgerSize    int            `json:"ledger_size"`
	HeartbeatAge  float64        `json:"heartbeat_age_seconds"`
	Restarts      int64          `json:"restarts"`
	Consumers     []string       `json:"consumers"`
	Dispatch      dispatch.Stats `json:"dispatch"`
	Store         *store.Stats   `json:"store,omitempty"`
}

// healthHandler reports "healthy" while running with a live connection,
// "degraded" while running without one, and "unhealthy" (503) otherwise.
func healthHandler(mon statusSource, pipeline pipelineSource, st store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := mon.Status()

		resp := healthResponse{
			Lifecycle:     status.State.String(),
			Connection:    status.Connection.String(),
			Subscriptions: status.Subscriptions,
			LedgerSize:    status.LedgerSize,
			HeartbeatAge:  status.HeartbeatAge.Seconds(),
			Restarts:      status.Restarts,
			Consumers:     pipeline.Consumers(),
			Dispatch:      pipeline.Stats(),
		}
		if st != nil {
			stats := st.Stats()
			resp.Store = &stats
		}

		switch {
		case status.State == model.LifecycleRunning && status.Connected:
			resp.Status = "healthy"
		case status.State == model.LifecycleRunning:
			resp.Status = "degraded"
		default:
			resp.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
}
