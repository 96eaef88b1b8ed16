package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/contextify/contextify/internal/domain/gateway"
	"github.com/contextify/contextify/internal/service"
	"github.com/contextify/contextify/pkg/mcp"
)

// WellKnownManifestPath serves the gateway manifest for discovery.
const WellKnownManifestPath = "/.well-known/contextify/manifest"

// Diagnostics exposes the operational surface: health, the gap report, and
// per-upstream statuses.
type Diagnostics struct {
	snapshots  *service.SnapshotProvider
	aggregator *service.Aggregator
	logger     *slog.Logger
	version    string
	mcpPath    string
	startedUTC time.Time
}

// NewDiagnostics creates the diagnostics surface.
func NewDiagnostics(snapshots *service.SnapshotProvider, aggregator *service.Aggregator, logger *slog.Logger, version, mcpPath string) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{
		snapshots:  snapshots,
		aggregator: aggregator,
		logger:     logger,
		version:    version,
		mcpPath:    mcpPath,
		startedUTC: time.Now().UTC(),
	}
}

// LivenessHandler always answers 200; the process is up.
func (d *Diagnostics) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

// HealthHandler reports readiness: the catalog snapshot plus upstream health.
// The gateway serves even with zero healthy upstreams, so this always answers
// 200 once the process is up; the body carries the detail.
func (d *Diagnostics) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		local := d.snapshots.GetSnapshot()
		remote := d.aggregator.GetSnapshot()

		body := map[string]any{
			"status":            "ok",
			"version":           d.version,
			"uptime":            time.Since(d.startedUTC).Round(time.Second).String(),
			"catalog_tools":     local.Len(),
			"gateway_tools":     remote.Len(),
			"healthy_upstreams": remote.HealthyUpstreamCount(),
		}
		d.writeJSON(w, body)
	})
}

// DiagnosticsHandler exposes the gap report of the last catalog compile and
// the per-upstream statuses.
func (d *Diagnostics) DiagnosticsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		local := d.snapshots.GetSnapshot()

		upstreams := make(map[string]any)
		for name, st := range d.aggregator.GetSnapshot().Statuses() {
			upstreams[name] = statusDocument(st)
		}

		body := map[string]any{
			"catalog": map[string]any{
				"tools":                 local.Names(),
				"created_utc":           local.CreatedUTC().Format(time.RFC3339),
				"policy_source_version": local.PolicySourceVersion(),
			},
			"upstreams": upstreams,
		}
		if report := d.snapshots.GapReport(); report != nil {
			body["gap_report"] = report
		}
		d.writeJSON(w, body)
	})
}

// ManifestHandler serves the well-known discovery document.
func (d *Diagnostics) ManifestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.writeJSON(w, map[string]any{
			"name":            "contextify",
			"version":         d.version,
			"protocolVersion": mcp.ProtocolVersion,
			"endpoint":        d.mcpPath,
			"transport":       "http",
		})
	})
}

func statusDocument(st gateway.UpstreamStatus) map[string]any {
	doc := map[string]any{
		"healthy":        st.Healthy,
		"last_check_utc": st.LastCheckUTC.Format(time.RFC3339),
		"tool_count":     st.ToolCount,
		"latency_ms":     st.LatencyMs,
	}
	if st.LastError != "" {
		doc["last_error"] = st.LastError
	}
	return doc
}

func (d *Diagnostics) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		d.logger.Error("failed to write diagnostics response", "error", err)
	}
}
