package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

func TestSearchForTermEmpty(t *testing.T) {
	c := &Client{}
	if _, err := c.SearchForTerm(context.Background(), "  ", nil, nil); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := c.SearchForCondition(context.Background(), "", nil, nil); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildQuery(t *testing.T) {
	open, closed := true, false
	cases := []struct {
		key        string
		value      string
		recruiting *bool
		want       string
	}{
		{"term", "diabetic cardiomyopathy", nil, "term:diabetic-cardiomyopathy"},
		{"cond", "spondylitis", &open, "recr:open,cond:spondylitis"},
		{"cond", "heart failure", &closed, "recr:closed,cond:heart-failure"},
	}
	for _, tc := range cases {
		if got := buildQuery(tc.key, tc.value, tc.recruiting); got != tc.want {
			t.Errorf("buildQuery(%s, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestSearchFollowsPagination(t *testing.T) {
	var gotQueries []string

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/trials/search.json", func(w http.ResponseWriter, r *http.Request) {
		gotQueries = append(gotQueries, r.URL.Query().Get("query"))
		next := srv.URL + "/page2.json"
		fmt.Fprintf(w, `{
			"resultCount": 1, "totalCount": 2,
			"nextPageURI": %q,
			"results": [{"id": "NCT00000001", "brief_title": "First", "eligibility": {
				"gender": "Female",
				"minimum_age": "18 Years",
				"maximum_age": "N/A",
				"healthy_volunteers": "Yes",
				"criteria": {"textblock": "Inclusion Criteria:\n\n- Adults"}
			}}]
		}`, next)
	})
	mux.HandleFunc("/page2.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"resultCount": 1, "totalCount": 2,
			"nextPageURI": null,
			"results": [{"id": "NCT00000002", "brief_title": "Second"}]
		}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	trials, err := c.SearchForTerm(context.Background(), "diabetic cardiomyopathy", nil, []string{"id", "eligibility"})
	if err != nil {
		t.Fatalf("SearchForTerm: %v", err)
	}

	if len(trials) != 2 {
		t.Fatalf("expected 2 trials across pages, got %d", len(trials))
	}
	if trials[0].NCT != "NCT00000001" || trials[1].NCT != "NCT00000002" {
		t.Errorf("unexpected trial ids: %s, %s", trials[0].NCT, trials[1].NCT)
	}
	if c.TotalCount() != 2 {
		t.Errorf("expected totalCount 2, got %d", c.TotalCount())
	}
	if len(gotQueries) != 1 || gotQueries[0] != "term:diabetic-cardiomyopathy" {
		t.Errorf("unexpected queries: %v", gotQueries)
	}

	first := trials[0]
	if first.Gender != trial.GenderFemale {
		t.Errorf("expected Female gender, got %v", first.Gender)
	}
	if first.MinAge != 18 || first.MaxAge != trial.DefaultMaxAge {
		t.Errorf("expected ages 18/200, got %d/%d", first.MinAge, first.MaxAge)
	}
	if !first.HealthyVolunteers {
		t.Error("expected healthy volunteers")
	}
	if first.CriteriaText != "Inclusion Criteria:\n\n- Adults" {
		t.Errorf("unexpected criteria text %q", first.CriteriaText)
	}
}

func TestSearchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := c.SearchForTerm(context.Background(), "asthma", nil, nil); err == nil {
		t.Error("expected an error on HTTP 500")
	}
}

func TestCleanTextblock(t *testing.T) {
	got := cleanTextblock("<p>Inclusion Criteria:</p>")
	if got != "Inclusion Criteria:" {
		t.Errorf("cleanTextblock = %q", got)
	}
	plain := "Inclusion Criteria:\n\n- Adults"
	if got := cleanTextblock(plain); got != plain {
		t.Errorf("plain text must pass through unchanged, got %q", got)
	}
}
