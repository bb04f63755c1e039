package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
)

// Overlay contains dynamic run state to visualize on the flow graph.
type Overlay struct {
	VisitedMoments []string
	CurrentMoment  string
}

// GenerateMermaid produces a Mermaid flowchart from resolved moment
// statuses, one subgraph per eligibility lane. Semantic shapes:
// goal definition ((circle)), capture and question [/parallelogram/],
// booking [[subroutine]], default [rectangle]. Gates render as hexagons
// with solid edges from the moments satisfying them and dotted edges to
// the moments requiring them. Overlay styles mark visited and current
// moments.
func GenerateMermaid(statuses []runtime.MomentStatus, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byLane := map[domain.Lane][]runtime.MomentStatus{}
	var laneOrder []domain.Lane
	for _, s := range statuses {
		if _, ok := byLane[s.Lane]; !ok {
			laneOrder = append(laneOrder, s.Lane)
		}
		byLane[s.Lane] = append(byLane[s.Lane], s)
	}

	for _, lane := range laneOrder {
		sb.WriteString(fmt.Sprintf("    subgraph %s\n", sanitizeMermaidID(string(lane))))
		for _, s := range byLane[lane] {
			safeID := sanitizeMermaidID(s.Moment.ID)
			opener, closer := shape(s.Moment.Kind)
			sb.WriteString(fmt.Sprintf("        %s%s\"%s\"%s\n", safeID, opener, s.Moment.ID, closer))
		}
		sb.WriteString("    end\n")
	}

	// Gate plumbing: declared as hexagons, wired from satisfiers to
	// requirers.
	for _, s := range statuses {
		safeID := sanitizeMermaidID(s.Moment.ID)
		for _, g := range s.Moment.Satisfies.Gates {
			sb.WriteString(fmt.Sprintf("    %s --> gate_%s{{\"%s\"}}\n", safeID, sanitizeMermaidID(string(g)), g))
		}
		for _, g := range s.Moment.Requires.Gates {
			sb.WriteString(fmt.Sprintf("    gate_%s{{\"%s\"}} -.-> %s\n", sanitizeMermaidID(string(g)), g, safeID))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for high contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedMoments {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentMoment != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentMoment)))
		}
	}

	return sb.String()
}

// OverlayFromRun derives the overlay from the path to the selected turn.
func OverlayFromRun(run *domain.Run) *Overlay {
	if run == nil || run.SelectedTurnID == "" {
		return nil
	}
	path, err := run.PathToRoot(run.SelectedTurnID)
	if err != nil {
		return nil
	}
	ov := &Overlay{}
	for _, t := range path {
		ov.VisitedMoments = append(ov.VisitedMoments, t.MomentID)
	}
	ov.CurrentMoment = path[len(path)-1].MomentID
	return ov
}

func shape(kind domain.MomentKind) (string, string) {
	switch kind {
	case domain.KindGoalDefinition:
		return "((", "))"
	case domain.KindBaselineCapture, domain.KindDeadlineCapture, domain.KindReflectiveQuestion:
		return "[/", "/]"
	case domain.KindActionBooking:
		return "[[", "]]"
	default:
		return "[", "]"
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
