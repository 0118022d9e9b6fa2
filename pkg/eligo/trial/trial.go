package trial

import (
	"strconv"
	"strings"
)

// Gender restricts trial participation by sex.
type Gender int

const (
	GenderAny Gender = iota
	GenderMale
	GenderFemale
)

// ParseGender maps registry gender strings ("Both", "Male", "Female")
// to the enum. Unknown values mean no restriction.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return GenderAny
	}
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	default:
		return "Any"
	}
}

// Age bounds used when the registry reports none ("N/A").
const (
	DefaultMinAge = 0
	DefaultMaxAge = 200
)

// ParseAge extracts the first integer from a registry age string such as
// "18 Years" or "6 Months". "N/A" and empty strings yield the fallback.
func ParseAge(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return fallback
	}
	for _, field := range strings.Fields(s) {
		if n, err := strconv.Atoi(field); err == nil {
			return n
		}
	}
	return fallback
}

// Trial is one registry record together with its eligibility data and
// split criterion fragments.
type Trial struct {
	NCT               string
	Title             string
	Gender            Gender
	MinAge            int
	MaxAge            int
	Population        string
	SamplingMethod    string
	HealthyVolunteers bool
	CriteriaText      string

	Criteria []*Criterion
}

// New creates a trial with default demographic bounds.
func New(nct string) *Trial {
	return &Trial{
		NCT:    nct,
		MinAge: DefaultMinAge,
		MaxAge: DefaultMaxAge,
	}
}

// HasCriteria reports whether the raw eligibility text was already split.
func (t *Trial) HasCriteria() bool {
	return len(t.Criteria) > 0
}

// AddCriterion appends a new unsaved criterion fragment.
func (t *Trial) AddCriterion(isInclusion bool, text string) *Criterion {
	c := &Criterion{
		NCT:         t.NCT,
		IsInclusion: isInclusion,
		Text:        text,
	}
	t.Criteria = append(t.Criteria, c)
	return c
}

// WaitingForPipeline reports whether any criterion of this trial has
// submitted input to the named pipeline and is still awaiting its output.
func (t *Trial) WaitingForPipeline(name string) bool {
	for _, c := range t.Criteria {
		if c.WaitingFor(name) {
			return true
		}
	}
	return false
}

// WaitingForAny reports whether any of the named pipelines still owes
// output for this trial.
func (t *Trial) WaitingForAny(names []string) bool {
	for _, name := range names {
		if t.WaitingForPipeline(name) {
			return true
		}
	}
	return false
}
