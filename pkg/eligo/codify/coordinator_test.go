package codify

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/nlp"
	"github.com/eligolab/eligo/pkg/eligo/store/memstore"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// fakePipeline is a scriptable nlp.Pipeline for coordinator tests.
type fakePipeline struct {
	name    string
	output  *nlp.Result // what ParseOutput returns
	writeOK bool
	written []string
	parsed  []string
}

func (f *fakePipeline) Name() string { return f.name }

func (f *fakePipeline) WriteInput(text, filename string) bool {
	f.written = append(f.written, filename)
	return f.writeOK
}

func (f *fakePipeline) ParseOutput(filename string) *nlp.Result {
	f.parsed = append(f.parsed, filename)
	return f.output
}

func newHydrated(t *testing.T, st *memstore.Store) *trial.Criterion {
	t.Helper()
	tr := trial.New("NCT00001234")
	c := tr.AddCriterion(true, "Age 18-65")
	if _, err := st.UpsertCriterion(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCodifyNotHydrated(t *testing.T) {
	co := &Coordinator{Store: memstore.New()}
	c := &trial.Criterion{NCT: "NCT00001234", Text: "Adults"}

	if err := co.Codify(context.Background(), c); !errors.Is(err, internalerr.ErrNotHydrated) {
		t.Errorf("expected ErrNotHydrated, got %v", err)
	}
}

func TestCodifySubmitsAndWaits(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	p := &fakePipeline{name: "ctakes", writeOK: true}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{p}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatalf("Codify: %v", err)
	}

	if !c.WaitingFor("ctakes") {
		t.Error("expected criterion to await ctakes output")
	}
	if len(p.written) != 1 || p.written[0] != c.InputFilename() {
		t.Errorf("expected one input write for %s, got %v", c.InputFilename(), p.written)
	}

	// the owning trial reports waiting too
	tr := trial.Trial{NCT: c.NCT, Criteria: []*trial.Criterion{c}}
	if !tr.WaitingForPipeline("ctakes") {
		t.Error("expected the trial to report waiting for ctakes")
	}

	// persisted
	loaded, _ := st.LoadCriteria(ctx, "NCT00001234")
	if !loaded[0].WaitingFor("ctakes") {
		t.Error("expected awaiting state to be persisted")
	}
}

func TestCodifyCollectsAndCompletes(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	p := &fakePipeline{
		name:   "ctakes",
		output: &nlp.Result{Codes: []string{"73211009"}, CUIs: []string{"C0011849"}},
	}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{p}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatalf("Codify: %v", err)
	}

	r := c.Result("ctakes")
	if r.State != trial.StateComplete {
		t.Fatalf("expected complete state, got %v", r.State)
	}
	if !reflect.DeepEqual(r.Codes, []string{"73211009"}) {
		t.Errorf("expected codes [73211009], got %v", r.Codes)
	}
	if !reflect.DeepEqual(r.CUIs, []string{"C0011849"}) {
		t.Errorf("expected CUIs [C0011849], got %v", r.CUIs)
	}
	if len(p.written) != 0 {
		t.Error("output was ready; no input should have been written")
	}
}

func TestCodifyCompleteIsSticky(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	p := &fakePipeline{
		name:   "ctakes",
		output: &nlp.Result{Codes: []string{"73211009"}, CUIs: []string{"C0011849"}},
	}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{p}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatal(err)
	}

	// repopulate the "output directory" with different content
	p.output = &nlp.Result{Codes: []string{"999999"}, CUIs: []string{"C9999999"}}
	parsedBefore := len(p.parsed)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatal(err)
	}

	r := c.Result("ctakes")
	if !reflect.DeepEqual(r.Codes, []string{"73211009"}) {
		t.Errorf("complete results must never change, got %v", r.Codes)
	}
	if len(p.parsed) != parsedBefore {
		t.Error("complete pipelines must not be polled again")
	}
}

func TestCodifyMergesAcrossPasses(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	p := &fakePipeline{name: "metamap", writeOK: true}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{p}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil { // submission pass
		t.Fatal(err)
	}

	p.output = &nlp.Result{Codes: []string{}, CUIs: []string{"C0011849", "C0011849", "C0020538"}}
	if err := co.Codify(ctx, c); err != nil { // collection pass
		t.Fatal(err)
	}

	r := c.Result("metamap")
	if r.State != trial.StateComplete {
		t.Fatalf("expected complete after collection pass, got %v", r.State)
	}
	if !reflect.DeepEqual(r.CUIs, []string{"C0011849", "C0020538"}) {
		t.Errorf("expected deduplicated CUIs, got %v", r.CUIs)
	}
}

func TestCodifyIndependentPipelines(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	done := &fakePipeline{name: "ctakes", output: &nlp.Result{Codes: []string{"73211009"}, CUIs: []string{}}}
	slow := &fakePipeline{name: "metamap", writeOK: true}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{done, slow}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatal(err)
	}

	if c.Result("ctakes").State != trial.StateComplete {
		t.Error("expected ctakes to complete")
	}
	if !c.WaitingFor("metamap") {
		t.Error("expected metamap to be awaiting output")
	}
}

func TestCodifyRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	p := &fakePipeline{
		name:   "ctakes",
		output: &nlp.Result{Codes: []string{"73211009", "73211009"}, CUIs: []string{"C0011849"}},
	}
	co := &Coordinator{Store: st, Pipelines: []nlp.Pipeline{p}}

	c := newHydrated(t, st)
	if err := co.Codify(ctx, c); err != nil {
		t.Fatal(err)
	}

	loaded, err := st.LoadCriteria(ctx, "NCT00001234")
	if err != nil {
		t.Fatal(err)
	}
	r := loaded[0].Result("ctakes")
	if !reflect.DeepEqual(r.Codes, []string{"73211009"}) {
		t.Errorf("expected deduplicated codes after reload, got %v", r.Codes)
	}
	if !reflect.DeepEqual(r.CUIs, []string{"C0011849"}) {
		t.Errorf("expected CUIs [C0011849] after reload, got %v", r.CUIs)
	}
}
