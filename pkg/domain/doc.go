/*
Package domain contains the core value types of the Espalier simulator:
the authored flow vocabulary (moments, gates, goal lenses) and the
execution side (runs, branches, turns, ledgers).

The package is dependency-free by design. Everything that mutates a Run
does so through its methods, which enforce the append-only contract:
turns are created exactly once, parents never change, and "editing the
past" is only ever expressed as forking a new branch from an existing
turn.
*/
package domain
