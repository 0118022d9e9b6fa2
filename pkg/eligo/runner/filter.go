package runner

import (
	"context"
	"fmt"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/trial"
	"github.com/eligolab/eligo/pkg/eligo/umls"
)

// Demographics describes the patient a run's results are filtered for.
type Demographics struct {
	Gender trial.Gender
	Age    int
}

// FilterDemographics tags each unexcluded result whose trial rules out
// the patient's gender or age with an exclusion reason, stores the
// updated result set on the run, and returns it.
func (r *Runner) FilterDemographics(ctx context.Context, run *Run, demo Demographics) ([]NCTResult, error) {
	results, ok := run.Results()
	if !ok {
		return nil, fmt.Errorf("filter demographics: %w", resultsUnavailable(run))
	}

	st, err := r.cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	for i, res := range results {
		if res.Reason != "" {
			continue
		}
		t, found, err := st.GetTrial(ctx, res.NCT)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		results[i].Reason = demographicReason(t, demo)
	}

	run.SetResults(results)
	return results, nil
}

// resultsUnavailable distinguishes a run that ended in failure from one
// still in progress.
func resultsUnavailable(run *Run) error {
	if run.Failed() {
		return fmt.Errorf("results not available: %w", internalerr.ErrRunFailed)
	}
	return fmt.Errorf("results not available: %w", internalerr.ErrInvalidInput)
}

func demographicReason(t *trial.Trial, demo Demographics) string {
	switch {
	case demo.Gender == trial.GenderMale && t.Gender == trial.GenderFemale:
		return "Limited to women"
	case demo.Gender == trial.GenderFemale && t.Gender == trial.GenderMale:
		return "Limited to men"
	case t.MinAge > demo.Age:
		return fmt.Sprintf("Patient is too young (min age %d)", t.MinAge)
	case t.MaxAge < demo.Age:
		return fmt.Sprintf("Patient is too old (max age %d)", t.MaxAge)
	}
	return ""
}

// FilterProblems excludes trials whose exclusion criteria carry SNOMED
// codes from the patient's problem list. lookup may be nil; reasons
// then name the bare codes.
func (r *Runner) FilterProblems(ctx context.Context, run *Run, problemCodes []string, lookup *umls.SNOMEDLookup) ([]NCTResult, error) {
	results, ok := run.Results()
	if !ok {
		return nil, fmt.Errorf("filter problems: %w", resultsUnavailable(run))
	}

	problems := make(map[string]struct{}, len(problemCodes))
	for _, code := range problemCodes {
		if code != "" {
			problems[code] = struct{}{}
		}
	}

	st, err := r.cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	for i, res := range results {
		if res.Reason != "" {
			continue
		}
		t, found, err := st.GetTrial(ctx, res.NCT)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		results[i].Reason = problemReason(ctx, t, problems, lookup)
	}

	run.SetResults(results)
	return results, nil
}

func problemReason(ctx context.Context, t *trial.Trial, problems map[string]struct{}, lookup *umls.SNOMEDLookup) string {
	for _, c := range t.Criteria {
		if c.IsInclusion {
			continue
		}
		var matched []string
		seen := make(map[string]struct{})
		for _, result := range c.Results {
			for _, code := range result.Codes {
				if _, ok := problems[code]; !ok {
					continue
				}
				if _, dup := seen[code]; dup {
					continue
				}
				seen[code] = struct{}{}
				matched = append(matched, code)
			}
		}
		if len(matched) == 0 {
			continue
		}

		reason := "Matches exclusion criteria:"
		for _, code := range matched {
			term := ""
			if lookup != nil {
				term = lookup.LookupCode(ctx, code)
			}
			reason += fmt.Sprintf("\n - %s (SNOMED %s)", term, code)
		}
		return reason
	}
	return ""
}
