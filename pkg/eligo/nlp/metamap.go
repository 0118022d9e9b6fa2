package nlp

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MetaMap reads the fielded (pipe-delimited) output a MetaMap run drops
// into its output directory. Only MMI rows carry mapped concepts; the
// CUI sits in the fifth field. MetaMap reports no SNOMED codes, so the
// primary code family is always empty.
type MetaMap struct {
	base
}

// NewMetaMap creates the MetaMap adapter.
func NewMetaMap(settings Settings) *MetaMap {
	return &MetaMap{base{name: "metamap", settings: settings}}
}

var cuiPattern = regexp.MustCompile(`^C\d{7}$`)

// ParseOutput looks for "<filename>" in the output directory.
func (m *MetaMap) ParseOutput(filename string) *Result {
	outPath := filepath.Join(m.outputDir(), filename)
	f, err := os.Open(outPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	cuis := []string{}
	seen := map[string]struct{}{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) < 5 || fields[1] != "MMI" {
			continue
		}
		cui := strings.TrimSpace(fields[4])
		if !cuiPattern.MatchString(cui) {
			continue
		}
		if _, ok := seen[cui]; ok {
			continue
		}
		seen[cui] = struct{}{}
		cuis = append(cuis, cui)
	}
	if scanner.Err() != nil {
		return nil
	}

	if m.settings.Cleanup {
		m.removeArtifacts(filename, outPath)
	}
	return &Result{Codes: []string{}, CUIs: cuis}
}
