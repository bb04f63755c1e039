package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/internal/outline"
)

// RenderOutline formats a disclosure outline as indented plain text for
// terminal display. Folds render as a single "..." row, collapsed
// divergences as a summary row with the hidden turn count.
func RenderOutline(o *outline.Outline) string {
	var sb strings.Builder
	for _, root := range o.Roots {
		renderSegment(&sb, root, 0)
	}
	return sb.String()
}

func renderSegment(sb *strings.Builder, seg *outline.Segment, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range seg.Items {
		if item.Fold != nil {
			fmt.Fprintf(sb, "%s  ... %d turns folded (%d-%d)\n",
				indent, item.Fold.Hidden, item.Fold.FromNumber, item.Fold.ToNumber)
			continue
		}
		marker := " "
		if item.Selected {
			marker = ">"
		}
		fmt.Fprintf(sb, "%s%s %d. [%s] %s\n",
			indent, marker, item.Turn.Number, item.Turn.MomentID, item.Turn.ID)
	}

	div := seg.Divergence
	if div == nil {
		return
	}
	if div.Collapsed {
		fmt.Fprintf(sb, "%s  + %d branches collapsed (%d turns)\n",
			indent, len(div.Arms), div.HiddenTurns)
		return
	}
	for _, arm := range div.Arms {
		renderSegment(sb, arm, depth+1)
	}
}
