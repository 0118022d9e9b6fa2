package umls

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleDescriptions = "id\teffectiveTime\tactive\tmoduleId\tconceptId\tlanguageCode\ttypeId\tterm\tcaseSignificanceId\n" +
	"101\t20120131\t1\t900000000000207008\t73211009\ten\t900000000000003001\tDiabetes mellitus\t900000000000020002\n" +
	"102\t20120131\t1\t900000000000207008\t77386006\ten\t900000000000003001\tPregnant\t900000000000020002\n" +
	"103\t20120131\t1\t900000000000207008\tnotanumber\ten\t900000000000003001\tBad row\t900000000000020002\n"

func openTestLookup(t *testing.T) (context.Context, *SNOMEDLookup, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	lookup, err := Open(ctx, filepath.Join(dir, "umls.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { lookup.Close() })

	tsv := filepath.Join(dir, "descriptions.txt")
	if err := os.WriteFile(tsv, []byte(sampleDescriptions), 0o644); err != nil {
		t.Fatal(err)
	}
	return ctx, lookup, tsv
}

func TestImportAndLookup(t *testing.T) {
	ctx, lookup, tsv := openTestLookup(t)

	if err := lookup.ImportIfNecessary(ctx, tsv); err != nil {
		t.Fatalf("ImportIfNecessary: %v", err)
	}

	if term := lookup.LookupCode(ctx, "73211009"); term != "Diabetes mellitus" {
		t.Errorf("LookupCode(73211009) = %q", term)
	}
	if term := lookup.LookupCode(ctx, "77386006"); term != "Pregnant" {
		t.Errorf("LookupCode(77386006) = %q", term)
	}
	if term := lookup.LookupCode(ctx, "999999"); term != "" {
		t.Errorf("unknown code should yield empty term, got %q", term)
	}
}

func TestImportSkipsWhenPopulated(t *testing.T) {
	ctx, lookup, tsv := openTestLookup(t)

	if err := lookup.ImportIfNecessary(ctx, tsv); err != nil {
		t.Fatal(err)
	}

	// second import against a now-missing file must be a no-op
	if err := lookup.ImportIfNecessary(ctx, filepath.Join(t.TempDir(), "gone.txt")); err != nil {
		t.Errorf("expected populated table to skip import, got %v", err)
	}
}
