package flow

import "fmt"

// ValidationError is one defect found in an authored document.
type ValidationError struct {
	MomentID string // empty for document-level defects
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.MomentID == "" {
		return fmt.Sprintf("flow: %s", e.Reason)
	}
	return fmt.Sprintf("moment %q: %s", e.MomentID, e.Reason)
}

// AggregateError collects every defect found in one validation pass.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d flow validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// ValidationErrors unwraps an AggregateError, or returns nil.
func ValidationErrors(err error) []error {
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return nil
}

// Warning is a finding that does not invalidate the document but likely
// indicates an authoring mistake.
type Warning struct {
	MomentID string
	Reason   string
}

func (w Warning) String() string {
	if w.MomentID == "" {
		return w.Reason
	}
	return fmt.Sprintf("moment %q: %s", w.MomentID, w.Reason)
}
