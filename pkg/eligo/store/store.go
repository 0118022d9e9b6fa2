package store

import (
	"context"
	"strings"

	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// Store is the durable record of trials and their criterion fragments.
//
// Writes may be buffered; Flush commits everything written since the
// last checkpoint. Callers flush at pass boundaries, not per row.
type Store interface {
	Close() error

	// Trials
	UpsertTrial(ctx context.Context, t *trial.Trial) error
	GetTrial(ctx context.Context, nct string) (*trial.Trial, bool, error)

	// Criteria
	LoadCriteria(ctx context.Context, nct string) ([]*trial.Criterion, error)
	UpsertCriterion(ctx context.Context, c *trial.Criterion) (int64, error)

	// Flush commits buffered writes.
	Flush(ctx context.Context) error
}

// CodeDelimiter joins code lists into their persisted string form.
const CodeDelimiter = "|"

// JoinCodes serializes a code list for storage.
func JoinCodes(codes []string) string {
	return strings.Join(codes, CodeDelimiter)
}

// SplitCodes parses the persisted form back into a list. An empty
// string yields an empty (non-nil) list so "ready with zero codes"
// survives a round trip.
func SplitCodes(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, CodeDelimiter)
}
