// Package httpapi exposes the simulator over HTTP. Handlers are
// hand-written chi routes matching the contract in api/openapi.yaml;
// the embedded contract is served at /openapi.yaml and browsable at
// /swagger.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/api"
	"github.com/aretw0/espalier/internal/outline"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

// Simulator defines the surface of the simulation core consumed by the
// HTTP adapter.
type Simulator interface {
	StartRun(ctx context.Context, runID, momentID, userMessage string) (*domain.Run, error)
	Continue(ctx context.Context, runID, parentTurnID, momentID, userMessage string) (*domain.Turn, error)
	Fork(ctx context.Context, runID, fromTurnID, label, momentID, userMessage string) (*domain.Branch, *domain.Turn, error)
	Select(ctx context.Context, runID, turnID string) (*domain.Run, error)
	Run(ctx context.Context, runID string) (*domain.Run, error)
	Runs(ctx context.Context) ([]string, error)
	DeleteRun(ctx context.Context, runID string) error
	LedgerAt(ctx context.Context, runID, turnID string) (domain.Ledger, error)
	Eligible(ctx context.Context, runID, turnID string) ([]runtime.MomentStatus, error)
	Statuses(ctx context.Context) ([]runtime.MomentStatus, error)
	Outline(ctx context.Context, runID string) (*outline.Outline, error)
	ToggleOutline(ctx context.Context, runID string, key outline.Key) (*outline.Outline, error)
	ExpandOutline(ctx context.Context, runID string) (*outline.Outline, error)
	CollapseOutline(ctx context.Context, runID string) (*outline.Outline, error)
	Flow(ctx context.Context) (*flow.Document, error)
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Ensure the library facade satisfies the adapter's view of the core.
var _ Simulator = (*espalier.Simulator)(nil)

// Server routes HTTP requests to the simulation core.
type Server struct {
	Sim     Simulator
	Streams *StreamManager
	metrics http.Handler
}

// HandlerOption configures the HTTP handler.
type HandlerOption func(*Server)

// WithMetricsHandler mounts a metrics endpoint at /metrics, typically
// observability.Metrics.Handler().
func WithMetricsHandler(h http.Handler) HandlerOption {
	return func(s *Server) { s.metrics = h }
}

// WithStreamManager shares an externally created stream manager, so
// its Hooks can be wired into the simulator before the handler exists.
func WithStreamManager(sm *StreamManager) HandlerOption {
	return func(s *Server) { s.Streams = sm }
}

// NewHandler creates the HTTP handler for the simulator.
func NewHandler(sim Simulator, opts ...HandlerOption) http.Handler {
	server := &Server{Sim: sim}
	for _, opt := range opts {
		opt(server)
	}
	if server.Streams == nil {
		server.Streams = NewStreamManager()
	}

	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(api.Spec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})

	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)

	r.Get("/flow", server.GetFlow)
	r.Get("/flow/moments", server.ListMoments)
	r.Get("/flow/graph", server.GetFlowGraph)

	r.Get("/runs", server.ListRuns)
	r.Post("/runs", server.CreateRun)
	r.Route("/runs/{runId}", func(r chi.Router) {
		r.Get("/", server.GetRun)
		r.Delete("/", server.DeleteRun)
		r.Post("/turns", server.ContinueRun)
		r.Post("/forks", server.ForkRun)
		r.Post("/select", server.SelectTurn)
		r.Get("/ledger", server.GetLedger)
		r.Get("/eligibility", server.GetEligibility)
		r.Get("/outline", server.GetOutline)
		r.Post("/outline/toggle", server.ToggleOutline)
		r.Post("/outline/expand", server.ExpandOutline)
		r.Post("/outline/collapse", server.CollapseOutline)
	})

	r.Get("/events", server.SubscribeEvents)

	if server.metrics != nil {
		r.Method(http.MethodGet, "/metrics", server.metrics)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Espalier API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetSwagger parses the embedded OpenAPI contract.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	return loader.LoadFromData(api.Spec)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "espalier-http",
		"version":     strings.TrimSpace(espalier.Version),
		"api_version": apiVersion,
	})
}

// GetFlow handles the GET /flow request.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Sim.Flow(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Flow error: %v", err), http.StatusInternalServerError)
		slog.Error("GetFlow failed", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListMoments handles the GET /flow/moments request.
func (s *Server) ListMoments(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.Sim.Statuses(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Resolve error: %v", err), http.StatusInternalServerError)
		slog.Error("ListMoments failed", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapStatuses(statuses))
}

// GetFlowGraph handles the GET /flow/graph request.
func (s *Server) GetFlowGraph(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.Sim.Statuses(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Resolve error: %v", err), http.StatusInternalServerError)
		slog.Error("GetFlowGraph failed", "error", err)
		return
	}

	var overlay *graph.Overlay
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err := s.Sim.Run(r.Context(), runID)
		if err != nil {
			writeError(w, err)
			return
		}
		overlay = graph.OverlayFromRun(run)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(statuses, overlay))
}

// CreateRun handles the POST /runs request.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RunID       string `json:"runId"`
		MomentID    string `json:"momentId"`
		UserMessage string `json:"userMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("CreateRun: Invalid request body", "error", err)
		return
	}
	if body.MomentID == "" {
		http.Error(w, "momentId is required", http.StatusBadRequest)
		return
	}

	run, err := s.Sim.StartRun(r.Context(), body.RunID, body.MomentID, body.UserMessage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListRuns handles the GET /runs request.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sim.Runs(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		slog.Error("ListRuns failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetRun handles the GET /runs/{runId} request.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Sim.Run(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DeleteRun handles the DELETE /runs/{runId} request.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.DeleteRun(r.Context(), chi.URLParam(r, "runId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContinueRun handles the POST /runs/{runId}/turns request.
func (s *Server) ContinueRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParentTurnID string `json:"parentTurnId"`
		MomentID     string `json:"momentId"`
		UserMessage  string `json:"userMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("ContinueRun: Invalid request body", "error", err)
		return
	}

	turn, err := s.Sim.Continue(r.Context(), chi.URLParam(r, "runId"), body.ParentTurnID, body.MomentID, body.UserMessage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

// ForkRun handles the POST /runs/{runId}/forks request.
func (s *Server) ForkRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromTurnID  string `json:"fromTurnId"`
		Label       string `json:"label"`
		MomentID    string `json:"momentId"`
		UserMessage string `json:"userMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("ForkRun: Invalid request body", "error", err)
		return
	}

	branch, turn, err := s.Sim.Fork(r.Context(), chi.URLParam(r, "runId"), body.FromTurnID, body.Label, body.MomentID, body.UserMessage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"branch": branch,
		"turn":   turn,
	})
}

// SelectTurn handles the POST /runs/{runId}/select request.
func (s *Server) SelectTurn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TurnID string `json:"turnId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("SelectTurn: Invalid request body", "error", err)
		return
	}

	run, err := s.Sim.Select(r.Context(), chi.URLParam(r, "runId"), body.TurnID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetLedger handles the GET /runs/{runId}/ledger request.
func (s *Server) GetLedger(w http.ResponseWriter, r *http.Request) {
	turnID := r.URL.Query().Get("turnId")
	if turnID == "" {
		http.Error(w, "turnId is required", http.StatusBadRequest)
		return
	}
	ledger, err := s.Sim.LedgerAt(r.Context(), chi.URLParam(r, "runId"), turnID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gates":  ledger.GateList(),
		"facts":  ledger.FactList(),
		"states": ledger.StateList(),
	})
}

// GetEligibility handles the GET /runs/{runId}/eligibility request.
func (s *Server) GetEligibility(w http.ResponseWriter, r *http.Request) {
	turnID := r.URL.Query().Get("turnId")
	if turnID == "" {
		http.Error(w, "turnId is required", http.StatusBadRequest)
		return
	}
	statuses, err := s.Sim.Eligible(r.Context(), chi.URLParam(r, "runId"), turnID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapStatuses(statuses))
}

// GetOutline handles the GET /runs/{runId}/outline request.
func (s *Server) GetOutline(w http.ResponseWriter, r *http.Request) {
	o, err := s.Sim.Outline(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ToggleOutline handles the POST /runs/{runId}/outline/toggle request.
func (s *Server) ToggleOutline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn("ToggleOutline: Invalid request body", "error", err)
		return
	}
	if body.Key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	o, err := s.Sim.ToggleOutline(r.Context(), chi.URLParam(r, "runId"), outline.Key(body.Key))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ExpandOutline handles the POST /runs/{runId}/outline/expand request.
func (s *Server) ExpandOutline(w http.ResponseWriter, r *http.Request) {
	o, err := s.Sim.ExpandOutline(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CollapseOutline handles the POST /runs/{runId}/outline/collapse request.
func (s *Server) CollapseOutline(w http.ResponseWriter, r *http.Request) {
	o, err := s.Sim.CollapseOutline(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SubscribeEvents handles the GET /events request (SSE). With run_id it
// streams that run's turn and fork events; without it, flow reload
// notifications.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		slog.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		slog.Info("SSE: Subscribing to flow reloads")
		events, err := s.Sim.Watch(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("Watch error: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: reload\ndata: flow changed\n\n")
				flusher.Flush()
			}
		}
	}

	slog.Info("SSE: Subscribing to run events", "run_id", runID)
	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("SSE Client Disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

// momentStatusView is the wire shape of one moment's standing.
type momentStatusView struct {
	MomentID     string          `json:"momentId"`
	Kind         string          `json:"kind"`
	Lane         string          `json:"lane"`
	Eligible     bool            `json:"eligible"`
	MissingGates []domain.GateID `json:"missingGates,omitempty"`
	MissingFacts []domain.FactID `json:"missingFacts,omitempty"`
}

func mapStatuses(statuses []runtime.MomentStatus) []momentStatusView {
	out := make([]momentStatusView, len(statuses))
	for i, s := range statuses {
		out[i] = momentStatusView{
			MomentID:     s.Moment.ID,
			Kind:         string(s.Moment.Kind),
			Lane:         string(s.Lane),
			Eligible:     s.Eligible,
			MissingGates: s.MissingGates,
			MissingFacts: s.MissingFacts,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}

// writeError maps domain failures to HTTP status codes: unknown runs
// and turns are 404, continuing from a non-leaf is 409, unmet
// requirements are 422 with the missing sets in the body.
func writeError(w http.ResponseWriter, err error) {
	var (
		notLeaf    *domain.NotALeafError
		ineligible *domain.IneligibleMomentError
		unknown    *domain.UnknownTurnError
	)
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &notLeaf):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &ineligible):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":        err.Error(),
			"momentId":     ineligible.MomentID,
			"missingGates": ineligible.MissingGates,
			"missingFacts": ineligible.MissingFacts,
		})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Request failed", "error", err)
	}
}
