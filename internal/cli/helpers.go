package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or
// SIGTERM, and remembers which signal did it.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger. Debug mode writes to
// stderr so the flow UI on stdout stays clean.
func createLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// printSystemMessage prints a standardized system message to stdout.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnAppended: func(ctx context.Context, e *domain.TurnEvent) {
			logger.Debug("Turn Appended", "turn_id", e.TurnID, "moment_id", e.MomentID, "decision", e.Decision)
		},
		OnBranchForked: func(ctx context.Context, e *domain.ForkEvent) {
			logger.Debug("Branch Forked", "branch_id", e.BranchID, "from", e.ForkedFromID)
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.Debug("Decision", "moment_id", e.MomentID, "decision", e.Decision, "duration", e.Duration)
		},
	}
}

func isInterrupted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		err.Error() == "interrupted" ||
		(errors.Unwrap(err) != nil && isInterrupted(errors.Unwrap(err)))
}

func handleExecutionError(err error) error {
	if err == nil {
		return nil
	}
	if isInterrupted(err) {
		return nil // Exit 0 for interruptions
	}
	return err
}

// splitCommand separates a console line into verb, identifier, and the
// free-text remainder. "go make-contact call me tomorrow" becomes
// ("go", "make-contact", "call me tomorrow").
func splitCommand(line string) (verb, id, rest string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", ""
	}
	verb = fields[0]
	if len(fields) > 1 {
		id = fields[1]
	}
	if len(fields) > 2 {
		rest = strings.Join(fields[2:], " ")
	}
	return verb, id, rest
}
