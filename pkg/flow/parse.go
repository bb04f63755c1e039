package flow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes a flow document from JSON or YAML and canonicalizes fact
// aliases. The format is sniffed: documents starting with '{' are JSON,
// anything else goes through the YAML decoder (which also accepts JSON,
// but strict JSON first keeps json.Number semantics for config payloads).
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty flow document")
	}

	var doc Document
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse flow document (json): %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse flow document (yaml): %w", err)
		}
	}

	doc.Canonicalize()
	return &doc, nil
}

// Marshal encodes the document as indented JSON, the round-trip format
// used by stores and fixtures.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow document: %w", err)
	}
	return data, nil
}
