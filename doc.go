/*
Package espalier is a conversation-flow simulator built around a
branching, append-only turn tree. It lets authors of guided
conversations explore "what if the user had answered differently"
without mutating history: every alternative answer forks a new branch,
and the knowledge available at any point is recomputed by replaying the
path from the root.

# Concept

A flow is a set of authored moments (prompts with requirements and
effects) plus gate definitions and goal lenses. The engine resolves
which moments are eligible given the replayed ledger, asks a decision
provider how the simulated participant responds, and appends the
resulting turn. Turns are immutable once linked; editing the past means
forking from it.

Runs persist through a pluggable store (in-memory or Redis), and the
outline engine projects large trees into a progressive-disclosure view
with folded linear runs and collapsible divergences.

# Usage

Initialize the simulator over a Loam flow directory, or inject a custom
loader:

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/espalier"
	)

	func main() {
		sim, err := espalier.New("./my-flow")
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		run, err := sim.StartRun(ctx, "", "welcome", "hi")
		if err != nil {
			log.Fatal(err)
		}

		turn, err := sim.Continue(ctx, run.ID, run.SelectedTurnID, "pick-goal", "I want to lose weight")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(turn.AgentMessage)

		// Explore an alternative without losing the first answer.
		_, alt, err := sim.Fork(ctx, run.ID, run.Roots()[0].ID, "What if", "pick-goal", "I want to run a 10k")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(alt.AgentMessage)
	}
*/
package espalier
