// Package mcp exposes the simulator as a Model Context Protocol
// server, so agent tooling can drive runs and inspect flows over
// stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/outline"
	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Simulator defines the surface of the simulation core consumed by the
// MCP server.
type Simulator interface {
	StartRun(ctx context.Context, runID, momentID, userMessage string) (*domain.Run, error)
	Continue(ctx context.Context, runID, parentTurnID, momentID, userMessage string) (*domain.Turn, error)
	Fork(ctx context.Context, runID, fromTurnID, label, momentID, userMessage string) (*domain.Branch, *domain.Turn, error)
	Select(ctx context.Context, runID, turnID string) (*domain.Run, error)
	Run(ctx context.Context, runID string) (*domain.Run, error)
	Runs(ctx context.Context) ([]string, error)
	LedgerAt(ctx context.Context, runID, turnID string) (domain.Ledger, error)
	Eligible(ctx context.Context, runID, turnID string) ([]runtime.MomentStatus, error)
	Outline(ctx context.Context, runID string) (*outline.Outline, error)
	Inspect(ctx context.Context) ([]domain.Moment, error)
}

var _ Simulator = (*espalier.Simulator)(nil)

// TurnResponse is the structured result of the turn-producing tools.
type TurnResponse struct {
	RunID        string `json:"run_id" jsonschema_description:"The run the turn belongs to"`
	BranchID     string `json:"branch_id" jsonschema_description:"The branch the turn was appended to"`
	TurnID       string `json:"turn_id" jsonschema_description:"The new turn's ID"`
	MomentID     string `json:"moment_id" jsonschema_description:"The moment that was executed"`
	Decision     string `json:"decision" jsonschema_description:"ADVANCE, STALL, EXPLAIN, FAST_TRACK or HANDOFF"`
	AgentMessage string `json:"agent_message,omitempty" jsonschema_description:"What the simulated agent said"`
}

// Server wraps the simulator and exposes it as an MCP server.
type Server struct {
	sim       Simulator
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(sim Simulator) *Server {
	s := &Server{
		sim:       sim,
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		fmt.Println("\nShutdown signal received, shutting down server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: start_run
	startTool := mcp.NewTool("start_run",
		mcp.WithDescription("Start a new simulation run at an entry moment of the loaded flow."),
		mcp.WithString("moment_id", mcp.Required(), mcp.Description("The entry moment to start at")),
		mcp.WithString("user_message", mcp.Description("The simulated user's first message")),
		mcp.WithString("run_id", mcp.Description("Run ID (generated when omitted)")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStartRun))

	// TOOL: continue_run
	continueTool := mcp.NewTool("continue_run",
		mcp.WithDescription("Append a turn at a branch tip. Fails when the parent already has children; use fork_run to explore an alternative."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to continue")),
		mcp.WithString("parent_turn_id", mcp.Required(), mcp.Description("The leaf turn to continue from")),
		mcp.WithString("moment_id", mcp.Required(), mcp.Description("The moment to execute next")),
		mcp.WithString("user_message", mcp.Description("The simulated user's message")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(continueTool, mcp.NewStructuredToolHandler(s.handleContinue))

	// TOOL: fork_run
	forkTool := mcp.NewTool("fork_run",
		mcp.WithDescription("Fork a new branch from any turn and execute its first turn. This is how the past is re-explored without mutating it."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to fork")),
		mcp.WithString("from_turn_id", mcp.Required(), mcp.Description("The turn to branch from")),
		mcp.WithString("moment_id", mcp.Required(), mcp.Description("The moment to execute on the new branch")),
		mcp.WithString("label", mcp.Description("Human-readable branch label")),
		mcp.WithString("user_message", mcp.Description("The alternative user message")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(forkTool, mcp.NewStructuredToolHandler(s.handleFork))

	// TOOL: get_ledger
	s.mcpServer.AddTool(mcp.NewTool("get_ledger",
		mcp.WithDescription("Replay the path through a turn and return the gates, facts and states known as of that point."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to inspect")),
		mcp.WithString("turn_id", mcp.Required(), mcp.Description("The turn whose context to replay")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID := request.GetString("run_id", "")
		turnID := request.GetString("turn_id", "")
		ledger, err := s.sim.LedgerAt(ctx, runID, turnID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ledger failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(map[string]any{
			"gates":  ledger.GateList(),
			"facts":  ledger.FactList(),
			"states": ledger.StateList(),
		})
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: get_eligibility
	s.mcpServer.AddTool(mcp.NewTool("get_eligibility",
		mcp.WithDescription("Resolve every authored moment against the ledger as of a turn, ordered by eligibility lane."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to inspect")),
		mcp.WithString("turn_id", mcp.Required(), mcp.Description("The turn whose context to replay")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID := request.GetString("run_id", "")
		turnID := request.GetString("turn_id", "")
		statuses, err := s.sim.Eligible(ctx, runID, turnID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("eligibility failed: %v", err)), nil
		}
		type row struct {
			MomentID     string          `json:"moment_id"`
			Lane         domain.Lane     `json:"lane"`
			Eligible     bool            `json:"eligible"`
			MissingGates []domain.GateID `json:"missing_gates,omitempty"`
			MissingFacts []domain.FactID `json:"missing_facts,omitempty"`
		}
		rows := make([]row, len(statuses))
		for i, st := range statuses {
			rows[i] = row{
				MomentID:     st.Moment.ID,
				Lane:         st.Lane,
				Eligible:     st.Eligible,
				MissingGates: st.MissingGates,
				MissingFacts: st.MissingFacts,
			}
		}
		jsonBytes, _ := json.Marshal(rows)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: get_outline
	s.mcpServer.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("Project the run tree as a progressive-disclosure outline with folded linear runs and collapsible divergences."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to project")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID := request.GetString("run_id", "")
		o, err := s.sim.Outline(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("outline failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(o)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: select_turn
	s.mcpServer.AddTool(mcp.NewTool("select_turn",
		mcp.WithDescription("Move the run's selection cursor to a turn. Continuation and outline focus follow the cursor."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to update")),
		mcp.WithString("turn_id", mcp.Required(), mcp.Description("The turn to select")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID := request.GetString("run_id", "")
		turnID := request.GetString("turn_id", "")
		run, err := s.sim.Select(ctx, runID, turnID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("select failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(map[string]string{
			"run_id":           run.ID,
			"selected_turn_id": run.SelectedTurnID,
			"active_branch_id": run.ActiveBranchID,
		})
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: list_runs
	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the IDs of persisted runs."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.sim.Runs(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: get_flow
	s.mcpServer.AddTool(mcp.NewTool("get_flow",
		mcp.WithDescription("Get every authored moment of the loaded flow for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		moments, err := s.sim.Inspect(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(moments)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	momentID, _ := args["moment_id"].(string)
	userMessage, _ := args["user_message"].(string)
	runID, _ := args["run_id"].(string)

	run, err := s.sim.StartRun(ctx, runID, momentID, userMessage)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	turn := run.Turns[run.SelectedTurnID]
	return turnResponse(run.ID, turn), nil
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	runID, _ := args["run_id"].(string)
	parentTurnID, _ := args["parent_turn_id"].(string)
	momentID, _ := args["moment_id"].(string)
	userMessage, _ := args["user_message"].(string)

	turn, err := s.sim.Continue(ctx, runID, parentTurnID, momentID, userMessage)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("continue failed: %w", err)
	}
	return turnResponse(runID, turn), nil
}

func (s *Server) handleFork(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	runID, _ := args["run_id"].(string)
	fromTurnID, _ := args["from_turn_id"].(string)
	momentID, _ := args["moment_id"].(string)
	label, _ := args["label"].(string)
	userMessage, _ := args["user_message"].(string)

	_, turn, err := s.sim.Fork(ctx, runID, fromTurnID, label, momentID, userMessage)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("fork failed: %w", err)
	}
	return turnResponse(runID, turn), nil
}

func turnResponse(runID string, turn *domain.Turn) TurnResponse {
	return TurnResponse{
		RunID:        runID,
		BranchID:     turn.BranchID,
		TurnID:       turn.ID,
		MomentID:     turn.MomentID,
		Decision:     string(turn.Decision.Decision),
		AgentMessage: turn.AgentMessage,
	}
}

func (s *Server) registerResources() {
	// EXPOSE: espalier://flow
	s.mcpServer.AddResource(mcp.NewResource("espalier://flow", "Current Flow Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		moments, err := s.sim.Inspect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect flow: %w", err)
		}
		jsonBytes, _ := json.Marshal(moments)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "espalier://flow",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
