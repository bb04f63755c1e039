/*
Package session orchestrates run persistence and concurrent access.

It serializes mutations of a run across goroutines (and, with a
distributed locker, across replicas) so the append-only turn tree is
never written by two simulation sessions at once.
*/
package session
