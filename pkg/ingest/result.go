package ingest

import "fmt"

// Result contains statistics from an import run.
type Result struct {
	Passages int
	Chunks   int
	Embedded int
	Failed   int
}

// Summary returns a human-readable summary of the import result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Import complete: %d passages became %d chunks\n"+
			"Embedded: %d, failed enrichment: %d",
		r.Passages, r.Chunks,
		r.Embedded, r.Failed,
	)
}
