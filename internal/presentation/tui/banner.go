package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for interactive mode.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Green-to-teal gradient, one line per stripe.
	s1 := termenv.String("                      _ _           ").Foreground(p.Color("#34d399"))
	s2 := termenv.String("   ___  ___ _ __   __ _| (_) ___ _ __ ").Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String("  / _ \\/ __| '_ \\ / _` | | |/ _ \\ '__|").Foreground(p.Color("#22d3ee"))
	s4 := termenv.String(" |  __/\\__ \\ |_) | (_| | | |  __/ |   ").Foreground(p.Color("#38bdf8"))
	s5 := termenv.String("  \\___||___/ .__/ \\__,_|_|_|\\___|_|   ").Foreground(p.Color("#60a5fa"))
	s6 := termenv.String("           |_|                        ").Foreground(p.Color("#818cf8"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Println()
}
