/*
Package flow parses and validates authored flow documents: the static
graph of moments, gate definitions, fact aliases and goal lenses that the
simulator consumes. The document is produced by the external authoring
tool; this package never writes one.

Documents round-trip as JSON or YAML. Validation reports every problem it
finds (aggregate errors, in one pass) and separates hard defects from
warning-grade findings such as a moment requiring BOOKING without
CONTACT.
*/
package flow
