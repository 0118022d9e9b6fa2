// Package server exposes the trial searcher over HTTP: start a run,
// poll its progress, read and filter its results, inspect stored
// trials.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
	"github.com/eligolab/eligo/pkg/eligo/runner"
	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/trial"
	"github.com/eligolab/eligo/pkg/eligo/umls"
)

// Server wires the run orchestrator and the trial store to HTTP
// handlers.
type Server struct {
	runner    *runner.Runner
	openStore func(ctx context.Context) (store.Store, error)
	lookup    *umls.SNOMEDLookup
}

// New constructs a Server. lookup may be nil when no vocabulary
// database is configured.
func New(r *runner.Runner, openStore func(ctx context.Context) (store.Store, error), lookup *umls.SNOMEDLookup) *Server {
	return &Server{runner: r, openStore: openStore, lookup: lookup}
}

// Router mounts all endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/trials/{nct}", s.handleTrial)
	r.Get("/trial_runs", s.handleStartRun)
	r.Get("/trial_runs/{id}/progress", s.handleProgress)
	r.Get("/trial_runs/{id}/results", s.handleResults)
	r.Get("/trial_runs/{id}/filter/{by}", s.handleFilter)
	return r
}

type trialResponse struct {
	NCT               string              `json:"nct"`
	Title             string              `json:"title"`
	Gender            string              `json:"gender"`
	MinAge            int                 `json:"min_age"`
	MaxAge            int                 `json:"max_age"`
	HealthyVolunteers bool                `json:"healthy_volunteers"`
	Criteria          []criterionResponse `json:"criteria"`
}

type criterionResponse struct {
	ID          int64               `json:"id"`
	IsInclusion bool                `json:"is_inclusion"`
	Text        string              `json:"text"`
	Codes       map[string][]string `json:"codes"`
	CUIs        map[string][]string `json:"cuis"`
}

func toTrialResponse(t *trial.Trial) trialResponse {
	resp := trialResponse{
		NCT:               t.NCT,
		Title:             t.Title,
		Gender:            t.Gender.String(),
		MinAge:            t.MinAge,
		MaxAge:            t.MaxAge,
		HealthyVolunteers: t.HealthyVolunteers,
		Criteria:          []criterionResponse{},
	}
	for _, c := range t.Criteria {
		cr := criterionResponse{
			ID:          c.ID,
			IsInclusion: c.IsInclusion,
			Text:        c.Text,
			Codes:       make(map[string][]string),
			CUIs:        make(map[string][]string),
		}
		for name, result := range c.Results {
			if result.State != trial.StateComplete {
				continue
			}
			cr.Codes[name] = result.Codes
			cr.CUIs[name] = result.CUIs
		}
		resp.Criteria = append(resp.Criteria, cr)
	}
	return resp
}

func (s *Server) handleTrial(w http.ResponseWriter, r *http.Request) {
	nct := chi.URLParam(r, "nct")

	st, err := s.openStore(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening store failed")
		log.Printf("server: opening store: %v", err)
		return
	}
	defer st.Close()

	t, found, err := st.GetTrial(r.Context(), nct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading trial failed")
		log.Printf("server: loading trial %s: %v", nct, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown trial "+nct)
		return
	}
	writeJSON(w, http.StatusOK, toTrialResponse(t))
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	condition := r.URL.Query().Get("cond")
	term := r.URL.Query().Get("term")

	run, err := s.runner.Start(condition, term)
	if err != nil {
		if errors.Is(err, internalerr.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "cond or term is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "starting run failed")
		log.Printf("server: starting run: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": run.ID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     run.ID,
		"status": run.Status(),
		"done":   run.Done(),
		"failed": run.Failed(),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	results, ok := run.Results()
	if !ok {
		writeError(w, http.StatusBadRequest, "run is not finished: "+run.Status())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}

	var results []runner.NCTResult
	var err error
	switch by := chi.URLParam(r, "by"); by {
	case "demographics":
		demo, ok := parseDemographics(w, r)
		if !ok {
			return
		}
		results, err = s.runner.FilterDemographics(r.Context(), run, demo)
	case "problems":
		codes := strings.Split(r.URL.Query().Get("codes"), ",")
		results, err = s.runner.FilterProblems(r.Context(), run, codes, s.lookup)
	default:
		writeError(w, http.StatusNotFound, "unknown filter "+by)
		return
	}

	if err != nil {
		if errors.Is(err, internalerr.ErrInvalidInput) || errors.Is(err, internalerr.ErrRunFailed) {
			writeError(w, http.StatusBadRequest, "run is not finished: "+run.Status())
			return
		}
		writeError(w, http.StatusInternalServerError, "filtering failed")
		log.Printf("server: filtering run %s: %v", run.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// run resolves the {id} route parameter, writing a 404 itself when the
// run is unknown.
func (s *Server) run(w http.ResponseWriter, r *http.Request) (*runner.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.runner.Get(id)
	if err != nil {
		if errors.Is(err, internalerr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown run "+id)
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "resolving run failed")
		log.Printf("server: resolving run %s: %v", id, err)
		return nil, false
	}
	return run, true
}

func parseDemographics(w http.ResponseWriter, r *http.Request) (runner.Demographics, bool) {
	demo := runner.Demographics{
		Gender: trial.ParseGender(r.URL.Query().Get("gender")),
	}
	ageParam := r.URL.Query().Get("age")
	if ageParam == "" {
		writeError(w, http.StatusBadRequest, "age is required")
		return demo, false
	}
	age, err := strconv.Atoi(ageParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "age must be a number")
		return demo, false
	}
	demo.Age = age
	return demo, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
