package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eligolab/eligo/internal/server"
	"github.com/eligolab/eligo/pkg/eligo/config"
	"github.com/eligolab/eligo/pkg/eligo/nlp"
	"github.com/eligolab/eligo/pkg/eligo/registry"
	"github.com/eligolab/eligo/pkg/eligo/runner"
	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/store/sqlite"
	"github.com/eligolab/eligo/pkg/eligo/umls"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (optional)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config:", err)
		}
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openStore := func(ctx context.Context) (store.Store, error) {
		return sqlite.Open(ctx, cfg.DatabasePath)
	}

	var lookup *umls.SNOMEDLookup
	if cfg.UMLS.DatabasePath != "" {
		var err error
		lookup, err = umls.Open(ctx, cfg.UMLS.DatabasePath)
		if err != nil {
			log.Fatal("Failed to open vocabulary database:", err)
		}
		defer lookup.Close()
		if cfg.UMLS.DescriptionFile != "" {
			if err := lookup.ImportIfNecessary(ctx, cfg.UMLS.DescriptionFile); err != nil {
				log.Fatal("Vocabulary import failed:", err)
			}
		}
	}

	r := runner.New(runner.Config{
		Source:       &registry.Client{BaseURL: cfg.RegistryURL},
		OpenStore:    openStore,
		NewPipelines: pipelineFactory(cfg),
		RunRoot:      cfg.RunRoot,
		ExternalCmd:  cfg.ExternalCmd,
		Recruiting:   cfg.RecruitingFilter(),
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(r, openStore, lookup).Router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
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
