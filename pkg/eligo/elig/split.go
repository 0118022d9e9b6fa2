// Package elig splits raw clinical-trial eligibility text into discrete
// inclusion and exclusion criterion fragments.
package elig

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
)

var (
	rowSplit    = regexp.MustCompile(`(?:\n\s*){2,}`)
	spaceRun    = regexp.MustCompile(`\s+`)
	leadDash    = regexp.MustCompile(`^-\s+`)
	leadNumber  = regexp.MustCompile(`^\d+\.\s+`)
	incHeading  = regexp.MustCompile(`(?i)^inclusion criteria`)
	excHeading  = regexp.MustCompile(`(?i)exclusion criteria`)
)

// Split partitions raw eligibility text into inclusion and exclusion
// fragments, one fragment per row. Heading rows and anything before the
// first heading are dropped. Text without recognizable headings is
// treated as inclusion criteria only.
func Split(raw string) (inclusion, exclusion []string, err error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil, fmt.Errorf("split eligibility: %w", internalerr.ErrEmptyInput)
	}

	var inc, exc, all []string
	section := 0 // 0 none, 1 inclusion, 2 exclusion

	for _, row := range rowSplit.Split(raw, -1) {
		text := listTrim(row)
		if text == "" || strings.EqualFold(text, "none") {
			continue
		}

		lower := strings.ToLower(text)
		switch {
		case incHeading.MatchString(text) && !strings.Contains(lower, "exclusion"):
			section = 1
			if rest := afterHeading(text, incHeading); rest != "" {
				inc = append(inc, rest)
				all = append(all, rest)
			}
		case excHeading.MatchString(text) && !strings.Contains(lower, "inclusion"):
			section = 2
			if rest := afterHeading(text, excHeading); rest != "" {
				exc = append(exc, rest)
				all = append(all, rest)
			}
		case section == 1:
			inc = append(inc, text)
			all = append(all, text)
		case section == 2:
			exc = append(exc, text)
			all = append(all, text)
		default:
			// preamble before any heading
			all = append(all, text)
		}
	}

	// Without both sections present, assume the whole text describes
	// inclusion criteria. Recovery rule, not an error.
	if len(inc) == 0 || len(exc) == 0 {
		log.Printf("elig: no inclusion/exclusion headings found, treating %d rows as inclusion criteria", len(all))
		return all, nil, nil
	}

	return inc, exc, nil
}

// afterHeading returns normalized row content trailing a section
// heading, e.g. the item in "Inclusion Criteria: - Age 18-65".
func afterHeading(text string, heading *regexp.Regexp) string {
	loc := heading.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := strings.TrimLeft(text[loc[1]:], ": ")
	rest = listTrim(rest)
	if strings.EqualFold(rest, "none") {
		return ""
	}
	return rest
}

// listTrim normalizes one row: whitespace runs collapse to single
// spaces and a single leading list marker ("- " or "1. ") is removed.
func listTrim(row string) string {
	row = strings.TrimSpace(row)
	row = spaceRun.ReplaceAllString(row, " ")
	row = leadDash.ReplaceAllString(row, "")
	row = leadNumber.ReplaceAllString(row, "")
	return row
}
