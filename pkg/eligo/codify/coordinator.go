// Package codify drives criterion fragments through the configured NLP
// pipelines.
//
// Per (criterion, pipeline) the state machine is
//
//	Unprocessed -> AwaitingOutput -> Complete
//
// where Complete is terminal. The external engines run out-of-band
// between coordinator passes, so Codify is a poll-then-submit step that
// is safe to call before, during and after the external batch run: it
// never double-submits work and never loses completed results.
package codify

import (
	"context"
	"fmt"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/nlp"
	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// Coordinator codifies criteria against a fixed set of pipelines,
// persisting every state change through the store.
type Coordinator struct {
	Store     store.Store
	Pipelines []nlp.Pipeline
}

// Codify advances one criterion through every configured pipeline. The
// criterion must be hydrated (have a store identifier) to correlate it
// with external output files.
func (co *Coordinator) Codify(ctx context.Context, c *trial.Criterion) error {
	if !c.Hydrated() {
		return fmt.Errorf("codify criterion for %s: %w", c.NCT, internalerr.ErrNotHydrated)
	}

	filename := c.InputFilename()
	for _, p := range co.Pipelines {
		result := c.Result(p.Name())
		if result.State == trial.StateComplete {
			continue
		}

		if out := p.ParseOutput(filename); out != nil {
			c.Merge(p.Name(), out.Codes, out.CUIs)
			if _, err := co.Store.UpsertCriterion(ctx, c); err != nil {
				return fmt.Errorf("persist codified criterion %d: %w", c.ID, err)
			}
			continue
		}

		if p.WriteInput(c.Text, filename) {
			result.State = trial.StateAwaitingOutput
			if _, err := co.Store.UpsertCriterion(ctx, c); err != nil {
				return fmt.Errorf("persist submitted criterion %d: %w", c.ID, err)
			}
		}
	}
	return nil
}

// CodifyTrial runs Codify over all criteria of a trial.
func (co *Coordinator) CodifyTrial(ctx context.Context, t *trial.Trial) error {
	for _, c := range t.Criteria {
		if err := co.Codify(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
