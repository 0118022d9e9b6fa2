package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eligolab/eligo/pkg/eligo/config"
	"github.com/eligolab/eligo/pkg/eligo/nlp"
	"github.com/eligolab/eligo/pkg/eligo/registry"
	"github.com/eligolab/eligo/pkg/eligo/runner"
	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/store/sqlite"
	"github.com/eligolab/eligo/pkg/eligo/trial"
	"github.com/eligolab/eligo/pkg/eligo/umls"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (optional)")
		term       = flag.String("term", "", "Search term")
		cond       = flag.String("cond", "", "Search condition")
		gender     = flag.String("gender", "", "Filter results for a patient gender (Male/Female)")
		age        = flag.Int("age", 0, "Filter results for a patient age")
		problems   = flag.String("problems", "", "Filter results for SNOMED problem codes, comma-separated")
	)
	flag.Parse()

	if *term == "" && *cond == "" {
		log.Fatal("--term or --cond required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config:", err)
		}
	}

	ctx := context.Background()

	r := runner.New(runner.Config{
		Source:       &registry.Client{BaseURL: cfg.RegistryURL},
		OpenStore:    openStore(cfg),
		NewPipelines: pipelineFactory(cfg),
		RunRoot:      cfg.RunRoot,
		ExternalCmd:  cfg.ExternalCmd,
		Recruiting:   cfg.RecruitingFilter(),
	})

	run, err := r.Start(*cond, *term)
	if err != nil {
		log.Fatal("Failed to start run:", err)
	}

	last := ""
	for !run.Done() {
		if status := run.Status(); status != last {
			log.Println(status)
			last = status
		}
		time.Sleep(250 * time.Millisecond)
	}
	if run.Failed() {
		log.Fatal(run.Status())
	}

	if *age > 0 || *gender != "" {
		demo := runner.Demographics{Gender: trial.ParseGender(*gender), Age: *age}
		if _, err := r.FilterDemographics(ctx, run, demo); err != nil {
			log.Fatal("Demographics filter failed:", err)
		}
	}
	if *problems != "" {
		lookup, err := umls.Open(ctx, cfg.UMLS.DatabasePath)
		if err != nil {
			log.Fatal("Failed to open vocabulary database:", err)
		}
		defer lookup.Close()
		codes := strings.Split(*problems, ",")
		if _, err := r.FilterProblems(ctx, run, codes, lookup); err != nil {
			log.Fatal("Problem filter failed:", err)
		}
	}

	results, _ := run.Results()
	for _, res := range results {
		if res.Reason == "" {
			fmt.Println(res.NCT)
			continue
		}
		fmt.Printf("%s\texcluded: %s\n", res.NCT, strings.ReplaceAll(res.Reason, "\n", " "))
	}
}

func openStore(cfg *config.Config) func(ctx context.Context) (store.Store, error) {
	return func(ctx context.Context) (store.Store, error) {
		return sqlite.Open(ctx, cfg.DatabasePath)
	}
}

func pipelineFactory(cfg *config.Config) func(runDir string) []nlp.Pipeline {
	return func(runDir string) []nlp.Pipeline {
		settings := nlp.Settings{Root: runDir, Cleanup: cfg.CleanupArtifacts}
		var pipelines []nlp.Pipeline
		for _, name := range cfg.Pipelines {
			switch name {
			case "ctakes":
				pipelines = append(pipelines, nlp.NewCTakes(settings))
			case "metamap":
				pipelines = append(pipelines, nlp.NewMetaMap(settings))
			}
		}
		return pipelines
	}
}
