/*
Package ports defines the interfaces between the simulator core and its
adapters: flow loading, run persistence, decision providers and
distributed locking. Implementations live under pkg/adapters; the core
never depends on a concrete backend.
*/
package ports
