package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// FactRequest is one fact an adaptive capture moment should elicit.
type FactRequest struct {
	ID       domain.FactID
	Optional bool
}

// captureConfig is the kind-specific configuration of capture moments.
// "metrics" selects which lens list feeds the questions.
type captureConfig struct {
	Metrics string `mapstructure:"metrics"` // "baseline" (default), "target" or "both"
}

// BaselineQuestions resolves the ordered facts a capture moment should
// elicit. The facts are not fixed on the moment: they come from the
// active goal lens's metric lists. Optional ('?'-suffixed) entries are
// surfaced with Optional set so callers can skip them without blocking
// eligibility.
func (r *Resolver) BaselineQuestions(m *domain.Moment, lens *domain.GoalLens) ([]FactRequest, error) {
	if m.Kind != domain.KindBaselineCapture {
		return nil, fmt.Errorf("moment %q is not a capture moment", m.ID)
	}
	if lens == nil {
		return nil, fmt.Errorf("moment %q needs an active goal lens", m.ID)
	}

	var cfg captureConfig
	if m.Config != nil {
		if err := mapstructure.Decode(m.Config, &cfg); err != nil {
			return nil, fmt.Errorf("moment %q: invalid capture config: %w", m.ID, err)
		}
	}

	var metrics []domain.FactID
	switch cfg.Metrics {
	case "", "baseline":
		metrics = lens.BaselineMetrics
	case "target":
		metrics = lens.TargetMetrics
	case "both":
		metrics = append(append([]domain.FactID{}, lens.BaselineMetrics...), lens.TargetMetrics...)
	default:
		return nil, fmt.Errorf("moment %q: unknown metrics selector %q", m.ID, cfg.Metrics)
	}

	requests := make([]FactRequest, 0, len(metrics))
	for _, f := range metrics {
		id, optional := splitOptional(f)
		requests = append(requests, FactRequest{ID: id, Optional: optional})
	}
	return requests, nil
}

// Facts and states the deadline policy establishes on accepted answers.
const (
	FactDeadline          = domain.FactID("goal.deadline")
	StateDeadlineFollowUp = domain.StateID("deadline_followup_pending")
)

// DeadlineKind classifies the shape of a user-supplied deadline.
type DeadlineKind string

const (
	DeadlineDate     DeadlineKind = "date"
	DeadlineRange    DeadlineKind = "range"
	DeadlineDuration DeadlineKind = "duration"
)

// DeadlineInput is a classified deadline answer.
type DeadlineInput struct {
	Kind DeadlineKind
	Raw  string
}

// DeadlineVerdict is the policy outcome for a deadline answer.
type DeadlineVerdict struct {
	// Accepted means the answer can be recorded as-is.
	Accepted bool
	// Deferred means the answer was accepted for now but a narrowing
	// follow-up turn should be scheduled (FOLLOW_UP strategy).
	Deferred bool
	Reason   string
}

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	durationRe = regexp.MustCompile(`(?i)^(in\s+)?~?\d+\s*(days?|weeks?|months?|years?)$`)
)

// ClassifyDeadline sorts a raw answer into date, range or duration.
// Anything with two date-ish halves joined by a separator is a range;
// a bare ISO date is a date; everything else is treated as a duration.
func ClassifyDeadline(raw string) DeadlineInput {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	for _, sep := range []string{" to ", " - ", "..", "–"} {
		if strings.Contains(lower, sep) {
			return DeadlineInput{Kind: DeadlineRange, Raw: trimmed}
		}
	}
	if strings.HasPrefix(lower, "between ") {
		return DeadlineInput{Kind: DeadlineRange, Raw: trimmed}
	}
	if dateRe.MatchString(trimmed) {
		return DeadlineInput{Kind: DeadlineDate, Raw: trimmed}
	}
	if durationRe.MatchString(trimmed) {
		return DeadlineInput{Kind: DeadlineDuration, Raw: trimmed}
	}
	// Unrecognized shapes behave like durations: the loosest form.
	return DeadlineInput{Kind: DeadlineDuration, Raw: trimmed}
}

// AcceptDeadline applies the lens's precision policy to a classified
// deadline. An exact date is acceptable under every policy. When the
// policy demands more precision than the answer has, the narrowing
// strategy decides between rejecting now (IMMEDIATE) and accepting with
// a follow-up (FOLLOW_UP).
func (r *Resolver) AcceptDeadline(lens *domain.GoalLens, in DeadlineInput) DeadlineVerdict {
	precision := domain.PrecisionExactDate
	narrowing := domain.NarrowImmediate
	if lens != nil {
		if lens.DeadlinePrecision != "" {
			precision = lens.DeadlinePrecision
		}
		if lens.Narrowing != "" {
			narrowing = lens.Narrowing
		}
	}

	preciseEnough := false
	switch precision {
	case domain.PrecisionExactDate:
		preciseEnough = in.Kind == DeadlineDate
	case domain.PrecisionRangeOK:
		preciseEnough = in.Kind == DeadlineDate || in.Kind == DeadlineRange
	case domain.PrecisionDurationOK:
		preciseEnough = true
	}

	if preciseEnough {
		return DeadlineVerdict{Accepted: true}
	}
	reason := fmt.Sprintf("deadline %q is too loose for %s policy", in.Raw, precision)
	if narrowing == domain.NarrowFollowUp {
		return DeadlineVerdict{Accepted: true, Deferred: true, Reason: reason}
	}
	return DeadlineVerdict{Accepted: false, Reason: reason}
}
