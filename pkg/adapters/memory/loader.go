package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/espalier/pkg/flow"
)

// Loader implements ports.FlowLoader over an in-memory document. Used in
// tests and by library callers that build their flow programmatically.
type Loader struct {
	mu  sync.RWMutex
	doc *flow.Document
}

// NewLoader creates a loader serving the given document.
func NewLoader(doc *flow.Document) *Loader {
	return &Loader{doc: doc}
}

// NewFromBytes parses JSON or YAML flow data. This handles parsing
// automatically, improving DX for tests.
func NewFromBytes(data []byte) (*Loader, error) {
	doc, err := flow.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow: %w", err)
	}
	return &Loader{doc: doc}, nil
}

// Load returns the current document.
func (l *Loader) Load(ctx context.Context) (*flow.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.doc == nil {
		return nil, fmt.Errorf("no flow document set")
	}
	return l.doc, nil
}

// Swap replaces the served document, for hot-reload style tests.
func (l *Loader) Swap(doc *flow.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.doc = doc
}
