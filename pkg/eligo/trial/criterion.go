package trial

import "fmt"

// PipelineState tracks how far one criterion has travelled through one
// NLP pipeline.
type PipelineState int

const (
	StateUnprocessed PipelineState = iota
	StateAwaitingOutput
	StateComplete
)

func (s PipelineState) String() string {
	switch s {
	case StateAwaitingOutput:
		return "awaiting-output"
	case StateComplete:
		return "complete"
	default:
		return "unprocessed"
	}
}

// PipelineResult holds the codes one pipeline attached to a criterion,
// plus the processing state for that pipeline. Codes and CUIs are
// deduplicated unions of everything the pipeline ever reported.
type PipelineResult struct {
	State PipelineState
	Codes []string // primary terminology codes (SNOMED)
	CUIs  []string // secondary concept identifiers (UMLS CUIs)
}

// Criterion is one inclusion or exclusion statement pulled from a
// trial's raw eligibility text.
type Criterion struct {
	ID          int64
	NCT         string
	IsInclusion bool
	Text        string

	// Results maps pipeline name to that pipeline's codes and state.
	Results map[string]*PipelineResult
}

// Hydrated reports whether the criterion has a store-assigned identifier.
// Without one it cannot be correlated with external pipeline output.
func (c *Criterion) Hydrated() bool {
	return c.ID > 0
}

// InputFilename is the name under which the criterion text is dropped
// into a pipeline's input directory, and under which output is expected.
func (c *Criterion) InputFilename() string {
	return fmt.Sprintf("%d.txt", c.ID)
}

// Result returns the result slot for the named pipeline, creating an
// unprocessed one on first access.
func (c *Criterion) Result(name string) *PipelineResult {
	if c.Results == nil {
		c.Results = make(map[string]*PipelineResult)
	}
	if r, ok := c.Results[name]; ok {
		return r
	}
	r := &PipelineResult{}
	c.Results[name] = r
	return r
}

// Merge unions the reported code lists into the stored sets for the
// named pipeline and marks it complete. Once complete a slot never
// changes again.
func (c *Criterion) Merge(name string, codes, cuis []string) {
	r := c.Result(name)
	if r.State == StateComplete {
		return
	}
	r.Codes = unionStrings(r.Codes, codes)
	r.CUIs = unionStrings(r.CUIs, cuis)
	r.State = StateComplete
}

// WaitingFor reports whether this criterion has pending input at the
// named pipeline.
func (c *Criterion) WaitingFor(name string) bool {
	if c.Results == nil {
		return false
	}
	r, ok := c.Results[name]
	return ok && r.State == StateAwaitingOutput
}

func unionStrings(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, lst := range [][]string{have, add} {
		for _, v := range lst {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
