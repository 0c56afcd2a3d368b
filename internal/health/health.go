// Package health serves vocalisd's liveness and readiness endpoints.
//
//   - GET /healthz — liveness probe; returns 200 as long as the process can
//     serve HTTP at all.
//   - GET /readyz — readiness probe; returns 200 only when the server can
//     usefully transcribe: the acoustic model is loaded and no decoder state
//     has been wedged past the stuck threshold.
//
// Both respond with a JSON body carrying "status" and "model_ready", the
// shape transcription clients poll before uploading; /readyz adds a "reason"
// string when it reports failure.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe so a wedged check cannot hang
// the endpoint past a scraper's own deadline.
const probeTimeout = 5 * time.Second

// Probe reports on one readiness dependency: nil when healthy, an error
// describing the problem otherwise. Probes must respect ctx cancellation.
type Probe func(ctx context.Context) error

// status is the JSON response body for both endpoints.
type status struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
	Reason     string `json:"reason,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. It is safe for
// concurrent use; both probes are fixed at construction time.
type Handler struct {
	modelReady  Probe
	poolHealthy Probe
}

// New creates a Handler. modelReady gates the model_ready field and overall
// readiness; poolHealthy catches stuck decoder states. Either may be nil,
// in which case that aspect always reports healthy.
func New(modelReady, poolHealthy Probe) *Handler {
	return &Handler{modelReady: modelReady, poolHealthy: poolHealthy}
}

// Healthz is the liveness probe: a process that can run this handler is
// alive, so it always returns 200. The body still carries model_ready so a
// client hitting the wrong endpoint sees something truthful.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	modelOK := h.probe(r.Context(), h.modelReady) == nil
	writeJSON(w, http.StatusOK, status{Status: "ok", ModelReady: modelOK})
}

// Readyz is the readiness probe: 200 with {"status":"ok","model_ready":true}
// when both probes pass, 503 with the first failure's reason otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.probe(r.Context(), h.modelReady); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, status{
			Status: "fail", ModelReady: false, Reason: err.Error(),
		})
		return
	}
	if err := h.probe(r.Context(), h.poolHealthy); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, status{
			Status: "fail", ModelReady: true, Reason: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, status{Status: "ok", ModelReady: true})
}

// probe runs p under the probe timeout. A nil probe is always healthy.
func (h *Handler) probe(ctx context.Context, p Probe) error {
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return p(ctx)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
