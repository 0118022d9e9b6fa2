package nlp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CTakes reads the XMI-style annotation bundles a cTAKES pipeline
// drops into its output directory. SNOMED codes are pulled from
// ontology-concept elements carrying codingScheme="SNOMED" and CUIs from
// any element with a cui attribute.
type CTakes struct {
	base
}

// NewCTakes creates the cTAKES adapter.
func NewCTakes(settings Settings) *CTakes {
	return &CTakes{base{name: "ctakes", settings: settings}}
}

// ParseOutput looks for "<filename>.xmi" in the output directory.
func (c *CTakes) ParseOutput(filename string) *Result {
	outPath := filepath.Join(c.outputDir(), filename+".xmi")
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil
	}

	res, err := parseXMI(data)
	if err != nil {
		// partial or malformed output; the external run may still be writing
		return nil
	}

	if c.settings.Cleanup {
		c.removeArtifacts(filename, outPath)
	}
	return res
}

func parseXMI(data []byte) (*Result, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	codes := []string{}
	cuis := []string{}
	seenCode := map[string]struct{}{}
	seenCUI := map[string]struct{}{}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var scheme, code, cui string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "codingScheme":
				scheme = attr.Value
			case "code":
				code = attr.Value
			case "cui":
				cui = attr.Value
			}
		}

		if strings.EqualFold(scheme, "SNOMED") && code != "" {
			if _, ok := seenCode[code]; !ok {
				seenCode[code] = struct{}{}
				codes = append(codes, code)
			}
		}
		if cui != "" {
			if _, ok := seenCUI[cui]; !ok {
				seenCUI[cui] = struct{}{}
				cuis = append(cuis, cui)
			}
		}
	}

	return &Result{Codes: codes, CUIs: cuis}, nil
}
