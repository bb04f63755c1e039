package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/outline"
	"github.com/aretw0/espalier/internal/presentation/tui"
	"github.com/aretw0/espalier/pkg/domain"
)

// Console drives a simulator from a line-oriented command stream. It is
// the core of interactive and headless modes; IO is injected so tests
// can script it.
type Console struct {
	Sim      *espalier.Simulator
	In       io.Reader
	Out      io.Writer
	Renderer func(string) (string, error)
	JSON     bool

	runID string
}

// Loop reads commands until EOF, an exit command, or context
// cancellation.
func (c *Console) Loop(ctx context.Context) error {
	scanner := bufio.NewScanner(c.In)
	c.printf("Type 'help' for commands.\n")
	c.prompt()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if line == "exit" || line == "quit" {
			c.printf("Bye!\n")
			return nil
		}
		if err := c.Dispatch(ctx, line); err != nil {
			c.printf("Error: %v\n", err)
		}
		c.prompt()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}

// Dispatch executes a single console command.
func (c *Console) Dispatch(ctx context.Context, line string) error {
	verb, id, rest := splitCommand(line)

	switch verb {
	case "help":
		c.printHelp()
		return nil

	case "start":
		if id == "" {
			return fmt.Errorf("usage: start <momentId> [message]")
		}
		run, err := c.Sim.StartRun(ctx, c.runID, id, rest)
		if err != nil {
			return err
		}
		c.runID = run.ID
		c.printf("Run %s started.\n", run.ID)
		return c.showTurn(run.Turns[run.SelectedTurnID])

	case "go":
		if id == "" {
			return fmt.Errorf("usage: go <momentId> [message]")
		}
		run, err := c.currentRun(ctx)
		if err != nil {
			return err
		}
		turn, err := c.Sim.Continue(ctx, c.runID, run.SelectedTurnID, id, rest)
		if err != nil {
			var notLeaf *domain.NotALeafError
			if errors.As(err, &notLeaf) {
				c.printf("Turn %s already has children. Use: fork %s %s ...\n", notLeaf.TurnID, notLeaf.TurnID, id)
			}
			return err
		}
		if _, err := c.Sim.Select(ctx, c.runID, turn.ID); err != nil {
			return err
		}
		return c.showTurn(turn)

	case "fork":
		// fork <turnId> <momentId> [message]
		momentID, msg, _ := strings.Cut(rest, " ")
		if id == "" || momentID == "" {
			return fmt.Errorf("usage: fork <turnId> <momentId> [message]")
		}
		branch, turn, err := c.Sim.Fork(ctx, c.runID, id, "What if", momentID, strings.TrimSpace(msg))
		if err != nil {
			return err
		}
		if _, err := c.Sim.Select(ctx, c.runID, turn.ID); err != nil {
			return err
		}
		c.printf("Forked branch %s.\n", branch.ID)
		return c.showTurn(turn)

	case "select":
		if id == "" {
			return fmt.Errorf("usage: select <turnId>")
		}
		run, err := c.Sim.Select(ctx, c.runID, id)
		if err != nil {
			return err
		}
		c.printf("Selected turn %s.\n", run.SelectedTurnID)
		return nil

	case "moments":
		run, err := c.currentRun(ctx)
		if err != nil {
			return err
		}
		statuses, err := c.Sim.Eligible(ctx, c.runID, run.SelectedTurnID)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			marker := " "
			if s.Eligible {
				marker = "*"
			}
			c.printf("%s %-20s [%s]", marker, s.Moment.ID, s.Lane)
			if len(s.MissingGates)+len(s.MissingFacts) > 0 {
				c.printf("  missing: %v %v", s.MissingGates, s.MissingFacts)
			}
			c.printf("\n")
		}
		return nil

	case "ledger":
		run, err := c.currentRun(ctx)
		if err != nil {
			return err
		}
		ledger, err := c.Sim.LedgerAt(ctx, c.runID, run.SelectedTurnID)
		if err != nil {
			return err
		}
		c.printf("gates:  %v\nfacts:  %v\nstates: %v\n",
			ledger.GateList(), ledger.FactList(), ledger.StateList())
		return nil

	case "outline":
		return c.showOutline(func() (*outline.Outline, error) {
			return c.Sim.Outline(ctx, c.runID)
		})
	case "expand":
		return c.showOutline(func() (*outline.Outline, error) {
			return c.Sim.ExpandOutline(ctx, c.runID)
		})
	case "collapse":
		return c.showOutline(func() (*outline.Outline, error) {
			return c.Sim.CollapseOutline(ctx, c.runID)
		})

	default:
		return fmt.Errorf("unknown command %q (try 'help')", verb)
	}
}

func (c *Console) currentRun(ctx context.Context) (*domain.Run, error) {
	if c.runID == "" {
		return nil, fmt.Errorf("no active run: use 'start <momentId>' first")
	}
	return c.Sim.Run(ctx, c.runID)
}

func (c *Console) showTurn(turn *domain.Turn) error {
	if c.JSON {
		return json.NewEncoder(c.Out).Encode(turn)
	}
	c.printf("[%s] %s (turn %s, #%d)\n", turn.Decision.Decision, turn.MomentID, turn.ID, turn.Number)
	if turn.AgentMessage != "" {
		msg := turn.AgentMessage
		if c.Renderer != nil {
			if rendered, err := c.Renderer(msg); err == nil {
				msg = rendered
			}
		}
		c.printf("%s\n", strings.TrimSpace(msg))
	}
	if turn.Decision.Reasoning != "" && turn.Decision.Decision == domain.DecisionStall {
		c.printf("(stalled: %s)\n", turn.Decision.Reasoning)
	}
	return nil
}

func (c *Console) showOutline(build func() (*outline.Outline, error)) error {
	if c.runID == "" {
		return fmt.Errorf("no active run: use 'start <momentId>' first")
	}
	o, err := build()
	if err != nil {
		return err
	}
	if c.JSON {
		return json.NewEncoder(c.Out).Encode(o)
	}
	c.printf("%s", tui.RenderOutline(o))
	return nil
}

func (c *Console) printHelp() {
	c.printf(`Commands:
  start <momentId> [message]        start a run at an entry moment
  go <momentId> [message]           continue at the selected turn
  fork <turnId> <momentId> [msg]    branch from any turn
  select <turnId>                   move the selection cursor
  moments                           list moments and their eligibility
  ledger                            show replayed knowledge at the cursor
  outline | expand | collapse       view the run tree
  exit                              leave
`)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Console) prompt() {
	if !c.JSON {
		c.printf("> ")
	}
}
