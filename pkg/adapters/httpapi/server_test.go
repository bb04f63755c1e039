package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiDoc() *flow.Document {
	return &flow.Document{
		ID:           "coaching-intake",
		EntryNodeIDs: []string{"welcome"},
		Nodes: []domain.Moment{
			{ID: "welcome", Kind: domain.KindExplanation, Prompt: "Welcome!"},
			{
				ID: "make-contact", Kind: domain.KindReflectiveQuestion,
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateContact}},
			},
			{
				ID: "book-session", Kind: domain.KindActionBooking,
				Requires: domain.Requirements{Gates: []domain.GateID{domain.GateContact}},
			},
		},
	}
}

func newTestServer(t *testing.T, opts ...HandlerOption) (http.Handler, *espalier.Simulator) {
	t.Helper()
	sim, err := espalier.New("", espalier.WithLoader(memory.NewLoader(apiDoc())))
	require.NoError(t, err)
	return NewHandler(sim, opts...), sim
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthAndInfo(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = doJSON(t, handler, "GET", "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "espalier-http", info["app"])
	assert.Equal(t, "1.0.0", info["api_version"])
}

func TestOpenAPIContract(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "GET", "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Espalier Simulation API")

	swagger, err := GetSwagger()
	require.NoError(t, err)
	require.NoError(t, swagger.Validate(context.Background()))
	assert.NotNil(t, swagger.Paths.Find("/runs/{runId}/outline"))

	w = doJSON(t, handler, "GET", "/swagger", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}

func TestRunLifecycle(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/runs", map[string]string{
		"runId": "run-1", "momentId": "welcome", "userMessage": "hi",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var run domain.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	root := run.SelectedTurnID
	require.NotEmpty(t, root)

	w = doJSON(t, handler, "GET", "/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")

	w = doJSON(t, handler, "POST", "/runs/run-1/turns", map[string]string{
		"parentTurnId": root, "momentId": "make-contact", "userMessage": "call me",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var turn domain.Turn
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turn))
	assert.Equal(t, 2, turn.Number)

	// The root now has a child: plain continuation conflicts.
	w = doJSON(t, handler, "POST", "/runs/run-1/turns", map[string]string{
		"parentTurnId": root, "momentId": "make-contact", "userMessage": "email me",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, handler, "POST", "/runs/run-1/forks", map[string]string{
		"fromTurnId": root, "label": "What if", "momentId": "make-contact", "userMessage": "email me",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"What if"`)

	w = doJSON(t, handler, "GET", "/runs/run-1/ledger?turnId="+turn.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.GateContact))

	w = doJSON(t, handler, "POST", "/runs/run-1/select", map[string]string{"turnId": root})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, "DELETE", "/runs/run-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, handler, "GET", "/runs/run-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIneligibleMomentReturns422(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/runs", map[string]string{
		"runId": "run-1", "momentId": "welcome",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	w = doJSON(t, handler, "POST", "/runs/run-1/turns", map[string]string{
		"parentTurnId": run.SelectedTurnID, "momentId": "book-session",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var detail struct {
		MomentID     string   `json:"momentId"`
		MissingGates []string `json:"missingGates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "book-session", detail.MomentID)
	assert.Equal(t, []string{string(domain.GateContact)}, detail.MissingGates)
}

func TestEligibilityEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/runs", map[string]string{
		"runId": "run-1", "momentId": "welcome",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	w = doJSON(t, handler, "GET", "/runs/run-1/eligibility?turnId="+run.SelectedTurnID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []momentStatusView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	byID := map[string]momentStatusView{}
	for _, s := range statuses {
		byID[s.MomentID] = s
	}
	assert.True(t, byID["make-contact"].Eligible)
	assert.False(t, byID["book-session"].Eligible)
	assert.Equal(t, []domain.GateID{domain.GateContact}, byID["book-session"].MissingGates)
}

func TestOutlineEndpoints(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/runs", map[string]string{
		"runId": "run-1", "momentId": "welcome",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	root := run.SelectedTurnID

	doJSON(t, handler, "POST", "/runs/run-1/turns", map[string]string{
		"parentTurnId": root, "momentId": "make-contact",
	})
	doJSON(t, handler, "POST", "/runs/run-1/forks", map[string]string{
		"fromTurnId": root, "momentId": "make-contact", "label": "alt",
	})

	w = doJSON(t, handler, "GET", "/runs/run-1/outline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run-1"`)

	w = doJSON(t, handler, "POST", "/runs/run-1/outline/toggle", map[string]string{
		"key": "divergence:" + root,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, "POST", "/runs/run-1/outline/expand", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, handler, "POST", "/runs/run-1/outline/collapse", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, "GET", "/runs/missing/outline", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlowGraphEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	w := doJSON(t, handler, "GET", "/flow/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))
	assert.Contains(t, w.Body.String(), "make_contact")

	doJSON(t, handler, "POST", "/runs", map[string]string{
		"runId": "run-1", "momentId": "welcome",
	})
	w = doJSON(t, handler, "GET", "/flow/graph?run_id=run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "class welcome current;")
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	metrics := observability.NewMetrics()
	handler, _ := newTestServer(t, WithMetricsHandler(metrics.Handler()))

	w := doJSON(t, handler, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/runs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamManagerBroadcastsHookEvents(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("run-1")
	defer cancel()

	hooks := sm.Hooks()
	hooks.OnTurnAppended(context.Background(), &domain.TurnEvent{
		EventBase: domain.EventBase{Type: domain.EventTurnAppended, RunID: "run-1"},
		TurnID:    "t1",
	})

	select {
	case msg := <-ch:
		assert.Contains(t, msg, `"turn_id":"t1"`)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast turn event")
	}
}

func TestSubscribeEvents_RunStream(t *testing.T) {
	sm := NewStreamManager()
	handler, _ := newTestServer(t, WithStreamManager(sm))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/events?run_id=run-1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(w, req)
	}()

	// Wait for the subscription to land, then push one event through.
	require.Eventually(t, func() bool {
		sm.mu.RLock()
		defer sm.mu.RUnlock()
		return len(sm.subscribers["run-1"]) == 1
	}, time.Second, 10*time.Millisecond)

	sm.Broadcast("run-1", `{"turn_id":"t1"}`)
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	body := w.Body.String()
	assert.Contains(t, body, "event: ping")
	assert.Contains(t, body, `data: {"turn_id":"t1"}`)
}
