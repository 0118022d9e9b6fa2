// Package nlp integrates external NLP engines through a file-drop
// protocol: one plain-text input file per criterion is dropped into the
// engine's input directory, and a result artifact named from the same
// identifier is polled for in its output directory. The engines run
// out-of-process; everything here is best-effort and retry-safe.
package nlp

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Result carries the code families one pipeline reported for one
// criterion. A non-nil Result with empty slices means "ready with zero
// codes", which is distinct from "not ready yet" (nil Result).
type Result struct {
	Codes []string // primary terminology codes (SNOMED)
	CUIs  []string // secondary concept identifiers (UMLS CUIs)
}

// Pipeline is the contract each external NLP engine implements.
type Pipeline interface {
	// Name is the stable key used in a criterion's per-pipeline state map.
	Name() string

	// WriteInput serializes text into the pipeline's input directory
	// under filename. Returns false when there is nothing to write,
	// the file already exists (already queued) or the input directory
	// is missing (configuration error, logged).
	WriteInput(text, filename string) bool

	// ParseOutput looks for the result artifact derived from filename.
	// A nil result means the output is not ready yet; parse failures
	// count as not ready since external tool output is transient.
	ParseOutput(filename string) *Result
}

// Settings configures where a pipeline reads and writes its artifacts.
type Settings struct {
	// Root is the run directory holding <name>_input and <name>_output.
	Root string

	// Cleanup removes consumed input and output artifacts after a
	// successful ParseOutput.
	Cleanup bool
}

// EnsureDirs creates the input and output directories for the named
// pipelines under root.
func EnsureDirs(root string, pipelines []Pipeline) error {
	for _, p := range pipelines {
		for _, suffix := range []string{"_input", "_output"} {
			if err := os.MkdirAll(filepath.Join(root, p.Name()+suffix), 0o755); err != nil {
				return err
			}
		}
	}
	return nil
}

// Names returns the names of the given pipelines, in order.
func Names(pipelines []Pipeline) []string {
	names := make([]string, len(pipelines))
	for i, p := range pipelines {
		names[i] = p.Name()
	}
	return names
}

// base implements the shared half of the file-drop protocol.
type base struct {
	name     string
	settings Settings
}

func (b *base) Name() string { return b.name }

func (b *base) inputDir() string {
	root := b.settings.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, b.name+"_input")
}

func (b *base) outputDir() string {
	root := b.settings.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, b.name+"_output")
}

func (b *base) WriteInput(text, filename string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	dir := b.inputDir()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Printf("nlp: input directory for %s does not exist: %s", b.name, dir)
		return false
	}

	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		// already queued for the external run
		return false
	}

	if err := os.WriteFile(path, []byte(toSentences(text)), 0o644); err != nil {
		log.Printf("nlp: writing input for %s: %v", b.name, err)
		return false
	}
	return true
}

// removeArtifacts deletes the consumed input file and the given output
// artifact. Only called after a successful parse when cleanup is on.
func (b *base) removeArtifacts(filename, outPath string) {
	os.Remove(filepath.Join(b.inputDir(), filename))
	os.Remove(outPath)
}

var sentenceBreak = regexp.MustCompile(`\s*\n\s*`)

// toSentences flattens a criterion fragment to one sentence per line so
// the external tokenizers see clean sentence boundaries.
func toSentences(text string) string {
	rows := sentenceBreak.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		if !strings.HasSuffix(row, ".") && !strings.HasSuffix(row, "!") && !strings.HasSuffix(row, "?") {
			row += "."
		}
		out = append(out, row)
	}
	return strings.Join(out, "\n")
}
