package nlp

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleMMI = `24119710|MMI|637.30|Diabetes Mellitus|C0011849|[dsyn]|["Diabetes"-tx-1]|TX|228/8
24119710|MMI|589.21|Pregnancy|C0032961|[orgf]|["Pregnant"-tx-1]|TX|12/8
24119710|AA|1|diabetes|
24119710|MMI|100.00|Bad Row|notacui|[dsyn]|x|TX|0/0
`

func newTestMetaMap(t *testing.T, cleanup bool) (*MetaMap, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"metamap_input", "metamap_output"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return NewMetaMap(Settings{Root: root, Cleanup: cleanup}), root
}

func TestMetaMapParseOutputNotReady(t *testing.T) {
	mm, _ := newTestMetaMap(t, false)
	if res := mm.ParseOutput("3.txt"); res != nil {
		t.Errorf("expected nil for missing output, got %+v", res)
	}
}

func TestMetaMapParseOutput(t *testing.T) {
	mm, root := newTestMetaMap(t, false)
	path := filepath.Join(root, "metamap_output", "3.txt")
	if err := os.WriteFile(path, []byte(sampleMMI), 0o644); err != nil {
		t.Fatal(err)
	}

	res := mm.ParseOutput("3.txt")
	if res == nil {
		t.Fatal("expected a parsed result")
	}
	if len(res.Codes) != 0 {
		t.Errorf("MetaMap reports no primary codes, got %v", res.Codes)
	}
	if !reflect.DeepEqual(res.CUIs, []string{"C0011849", "C0032961"}) {
		t.Errorf("expected CUIs [C0011849 C0032961], got %v", res.CUIs)
	}
}

func TestMetaMapCleanup(t *testing.T) {
	mm, root := newTestMetaMap(t, true)
	if !mm.WriteInput("Pregnant", "3.txt") {
		t.Fatal("WriteInput failed")
	}
	outPath := filepath.Join(root, "metamap_output", "3.txt")
	if err := os.WriteFile(outPath, []byte(sampleMMI), 0o644); err != nil {
		t.Fatal(err)
	}

	if res := mm.ParseOutput("3.txt"); res == nil {
		t.Fatal("expected a parsed result")
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("expected output artifact to be removed after consumption")
	}
	if _, err := os.Stat(filepath.Join(root, "metamap_input", "3.txt")); !os.IsNotExist(err) {
		t.Error("expected input artifact to be removed after consumption")
	}
}
