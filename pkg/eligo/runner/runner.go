// Package runner drives one end-to-end batch: fetch trials, split
// eligibility text, submit criteria to the NLP pipelines, invoke the
// external batch process, collect results.
package runner

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"

	"github.com/eligolab/eligo/pkg/eligo/codify"
	"github.com/eligolab/eligo/pkg/eligo/elig"
	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/nlp"
	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// TrialSource searches the registry. *registry.Client implements it.
type TrialSource interface {
	SearchForTerm(ctx context.Context, term string, recruiting *bool, fields []string) ([]*trial.Trial, error)
	SearchForCondition(ctx context.Context, condition string, recruiting *bool, fields []string) ([]*trial.Trial, error)
}

// DefaultFields are the registry fields a run needs.
var DefaultFields = []string{"id", "brief_title", "eligibility"}

// Config wires a Runner's collaborators.
type Config struct {
	Source TrialSource

	// OpenStore opens a fresh store handle. Each run owns its own
	// handle; the backing engine is not safe for cross-goroutine
	// sharing of one connection.
	OpenStore func(ctx context.Context) (store.Store, error)

	// NewPipelines builds the adapter set rooted at a run directory.
	NewPipelines func(runDir string) []nlp.Pipeline

	// RunRoot holds the per-run working directories.
	RunRoot string

	// ExternalCmd is the batch NLP command, invoked with the run
	// directory as its argument. Empty disables the external step.
	ExternalCmd string

	// Fields overrides DefaultFields.
	Fields []string

	// Recruiting optionally limits searches by recruitment status.
	Recruiting *bool
}

// Runner starts and tracks runs.
type Runner struct {
	cfg  Config
	runs *Registry
}

// New creates a Runner.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg, runs: NewRegistry()}
}

// Get returns a previously started run.
func (r *Runner) Get(id string) (*Run, error) {
	if run := r.runs.Get(id); run != nil {
		return run, nil
	}
	return nil, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
}

// Start registers a run for the given condition or term (condition
// takes precedence) and executes it on its own goroutine. Callers poll
// the returned Run for progress.
func (r *Runner) Start(condition, term string) (*Run, error) {
	if condition == "" && term == "" {
		return nil, fmt.Errorf("start run: %w", internalerr.ErrInvalidInput)
	}

	run := r.runs.NewRun(term, condition)
	go r.execute(context.Background(), run)
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *Run) {
	st, err := r.cfg.OpenStore(ctx)
	if err != nil {
		run.fail(fmt.Sprintf("failed: opening store: %v", err))
		return
	}
	defer st.Close()

	run.setStatus("fetching trials")
	trials, err := r.fetch(ctx, run)
	if err != nil {
		run.fail(fmt.Sprintf("failed: %v", err))
		return
	}

	runDir := filepath.Join(r.cfg.RunRoot, "run-"+run.ID)
	pipelines := r.cfg.NewPipelines(runDir)
	if err := nlp.EnsureDirs(runDir, pipelines); err != nil {
		run.fail(fmt.Sprintf("failed: preparing run directory: %v", err))
		return
	}
	names := nlp.Names(pipelines)
	coord := &codify.Coordinator{Store: st, Pipelines: pipelines}

	// submission pass
	waiting := false
	for i := range trials {
		run.setStatus(fmt.Sprintf("processing %d of %d", i+1, len(trials)))

		t, err := r.loadOrCreate(ctx, st, trials[i])
		if err != nil {
			run.fail(fmt.Sprintf("failed: trial %s: %v", trials[i].NCT, err))
			return
		}
		trials[i] = t

		if err := coord.CodifyTrial(ctx, t); err != nil {
			run.fail(fmt.Sprintf("failed: codifying %s: %v", t.NCT, err))
			return
		}
		if t.WaitingForAny(names) {
			waiting = true
		}
	}
	if err := st.Flush(ctx); err != nil {
		run.fail(fmt.Sprintf("failed: %v", err))
		return
	}

	if waiting && r.cfg.ExternalCmd != "" {
		run.setStatus("running external NLP")
		cmd := exec.CommandContext(ctx, r.cfg.ExternalCmd, runDir)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Printf("runner: external NLP output:\n%s", out)
			run.fail(fmt.Sprintf("failed: external NLP: %v", err))
			return
		}

		// collection pass
		run.setStatus("collecting results")
		for _, t := range trials {
			if err := coord.CodifyTrial(ctx, t); err != nil {
				run.fail(fmt.Sprintf("failed: collecting %s: %v", t.NCT, err))
				return
			}
		}
		if err := st.Flush(ctx); err != nil {
			run.fail(fmt.Sprintf("failed: %v", err))
			return
		}
	}

	results := make([]NCTResult, len(trials))
	for i, t := range trials {
		results[i] = NCTResult{NCT: t.NCT}
	}
	run.complete(results)
}

func (r *Runner) fetch(ctx context.Context, run *Run) ([]*trial.Trial, error) {
	fields := r.cfg.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	if run.Condition != "" {
		return r.cfg.Source.SearchForCondition(ctx, run.Condition, r.cfg.Recruiting, fields)
	}
	return r.cfg.Source.SearchForTerm(ctx, run.Term, r.cfg.Recruiting, fields)
}

// loadOrCreate persists the fetched trial and hydrates its criteria,
// splitting the raw eligibility text on first contact.
func (r *Runner) loadOrCreate(ctx context.Context, st store.Store, fetched *trial.Trial) (*trial.Trial, error) {
	if err := st.UpsertTrial(ctx, fetched); err != nil {
		return nil, err
	}

	existing, err := st.LoadCriteria(ctx, fetched.NCT)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		fetched.Criteria = existing
		return fetched, nil
	}

	if fetched.CriteriaText == "" {
		return fetched, nil
	}

	inclusion, exclusion, err := elig.Split(fetched.CriteriaText)
	if err != nil {
		// recovery: a trial without splittable criteria just has none
		log.Printf("runner: splitting criteria for %s: %v", fetched.NCT, err)
		return fetched, nil
	}

	for _, row := range inclusion {
		if _, err := st.UpsertCriterion(ctx, fetched.AddCriterion(true, row)); err != nil {
			return nil, err
		}
	}
	for _, row := range exclusion {
		if _, err := st.UpsertCriterion(ctx, fetched.AddCriterion(false, row)); err != nil {
			return nil, err
		}
	}
	return fetched, nil
}
