// Package registry talks to the ClinicalTrials.gov bridge API: a
// paginated JSON search endpoint queried with cond:/term:/recr: terms.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

// DefaultBaseURL points at the public bridge API.
const DefaultBaseURL = "http://api.lillycoi.com/v1"

const pageLimit = 50

// Client searches the trial registry. The zero value works with the
// default base URL and HTTP client.
type Client struct {
	BaseURL string

	HTTPClient *http.Client

	// pagination bookkeeping from the most recent search
	resultCount int
	totalCount  int
}

// ResultCount reports how many results the last page carried.
func (c *Client) ResultCount() int { return c.resultCount }

// TotalCount reports the total match count of the last search.
func (c *Client) TotalCount() int { return c.totalCount }

// SearchForCondition searches trials matching a medical condition.
// recruiting limits to open (true) or closed (false) trials; nil means
// no limit. fields lists the record fields to return.
func (c *Client) SearchForCondition(ctx context.Context, condition string, recruiting *bool, fields []string) ([]*trial.Trial, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, fmt.Errorf("search condition: %w", internalerr.ErrInvalidInput)
	}
	return c.search(ctx, buildQuery("cond", condition, recruiting), fields)
}

// SearchForTerm searches trials with a generic search term.
func (c *Client) SearchForTerm(ctx context.Context, term string, recruiting *bool, fields []string) ([]*trial.Trial, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term: %w", internalerr.ErrInvalidInput)
	}
	return c.search(ctx, buildQuery("term", term, recruiting), fields)
}

// buildQuery assembles the structured query string; spaces in the
// search value become hyphens.
func buildQuery(key, value string, recruiting *bool) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "-")
	if recruiting == nil {
		return fmt.Sprintf("%s:%s", key, value)
	}
	recr := "closed"
	if *recruiting {
		recr = "open"
	}
	return fmt.Sprintf("recr:%s,%s:%s", recr, key, value)
}

// search runs the paginated fetch, following nextPageURI until the
// result set is exhausted.
func (c *Client) search(ctx context.Context, query string, fields []string) ([]*trial.Trial, error) {
	flds := "id,brief_title"
	if len(fields) > 0 {
		flds = strings.Join(fields, ",")
	}

	params := url.Values{}
	params.Set("fields", flds)
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("query", query)

	pageURL := fmt.Sprintf("%s/trials/search.json?%s", c.baseURL(), params.Encode())

	var trials []*trial.Trial
	for pageURL != "" {
		page, err := c.getPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		c.resultCount = page.ResultCount
		c.totalCount = page.TotalCount

		for _, rec := range page.Results {
			trials = append(trials, rec.toTrial())
		}

		pageURL = ""
		if page.NextPageURI != nil && *page.NextPageURI != "" {
			pageURL = c.resolvePage(*page.NextPageURI)
		}
	}
	return trials, nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry request: unexpected status %s", resp.Status)
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}
	return &page, nil
}

// resolvePage makes a nextPageURI absolute against the base URL when
// the API returns a relative one.
func (c *Client) resolvePage(uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	return c.baseURL() + "/" + strings.TrimPrefix(uri, "/")
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// searchResponse is one page of the bridge API's search result.
type searchResponse struct {
	PreviousPageURI *string       `json:"previousPageURI"`
	NextPageURI     *string       `json:"nextPageURI"`
	ResultCount     int           `json:"resultCount"`
	TotalCount      int           `json:"totalCount"`
	Results         []trialRecord `json:"results"`
}

type trialRecord struct {
	ID          string             `json:"id"`
	BriefTitle  string             `json:"brief_title"`
	Eligibility *eligibilityRecord `json:"eligibility"`
}

type eligibilityRecord struct {
	Gender            string     `json:"gender"`
	MinimumAge        string     `json:"minimum_age"`
	MaximumAge        string     `json:"maximum_age"`
	StudyPop          *textBlock `json:"study_pop"`
	SamplingMethod    string     `json:"sampling_method"`
	HealthyVolunteers string     `json:"healthy_volunteers"`
	Criteria          *textBlock `json:"criteria"`
}

type textBlock struct {
	Textblock string `json:"textblock"`
}

func (r trialRecord) toTrial() *trial.Trial {
	t := trial.New(r.ID)
	t.Title = r.BriefTitle

	e := r.Eligibility
	if e == nil {
		return t
	}

	t.Gender = trial.ParseGender(e.Gender)
	t.MinAge = trial.ParseAge(e.MinimumAge, trial.DefaultMinAge)
	t.MaxAge = trial.ParseAge(e.MaximumAge, trial.DefaultMaxAge)
	t.SamplingMethod = e.SamplingMethod
	t.HealthyVolunteers = e.HealthyVolunteers == "Yes"
	if e.StudyPop != nil {
		t.Population = cleanTextblock(e.StudyPop.Textblock)
	}
	if e.Criteria != nil {
		t.CriteriaText = cleanTextblock(e.Criteria.Textblock)
	}
	return t
}
