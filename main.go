package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rule-core/internal/account"
	"rule-core/internal/api"
	"rule-core/internal/backend"
	"rule-core/internal/engine"
	"rule-core/internal/events"
	"rule-core/internal/history"
	"rule-core/internal/indicators"
	"rule-core/internal/market"
	"rule-core/internal/rules"
	"rule-core/pkg/cache"
	"rule-core/pkg/config"
	"rule-core/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting rule-core on port %s (symbols: %v)", cfg.Port, cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}
	store := database.Queries()

	registry := rules.NewBuiltinRegistry()
	indEngine := indicators.NewEngine(cfg.IndicatorWindow)
	quotes := cache.NewShardedQuoteCache()
	tracker := history.NewTracker(1000)

	// Account provider: live broker when keys are present, static otherwise.
	var accounts rules.AccountProvider
	if cfg.AlpacaAPIKey != "" && cfg.AlpacaAPISecret != "" {
		accounts = account.NewAlpacaProvider(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaPaper)
		log.Printf("account provider: alpaca (paper=%v)", cfg.AlpacaPaper)
	} else {
		accounts = account.NewStaticProvider(nil)
		log.Println("account provider: static (no broker keys configured)")
	}

	builder := &rules.ContextBuilder{
		Accounts:            accounts,
		Actions:             tracker,
		GlobalAccountFields: rules.GlobalAccountFields,
	}

	var backendClient *backend.Client
	if cfg.BackendURL != "" {
		backendClient = backend.NewClient(cfg.BackendURL, cfg.BackendToken)
		log.Printf("backend relay: %s", cfg.BackendURL)
	}

	svc := engine.New(builder, indEngine, tracker, quotes, bus, store)
	svc.MinInterval = time.Duration(cfg.EvalMinInterval) * time.Millisecond
	svc.Start(ctx)

	// Forward evaluation results upstream when a backend is configured.
	if backendClient != nil {
		results, unsubResults := bus.Subscribe(events.EventRuleResult, 100)
		defer unsubResults()
		go func() {
			for msg := range results {
				if err := backendClient.ReportResult(ctx, msg); err != nil {
					log.Printf("backend result relay: %v", err)
				}
			}
		}()
	}

	// Seed playbooks from the local YAML file, deploying the first one found.
	// When the file has nothing to deploy, restore whatever was deployed
	// before the last shutdown.
	if cfg.PlaybookFile != "" {
		seedPlaybooks(ctx, cfg.PlaybookFile, registry, store, svc)
	}
	if svc.Current() == nil {
		restoreDeployed(ctx, registry, store, svc)
	}

	// Market data (mock first, real later)
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:        bus,
			Symbols:    cfg.Symbols,
			StartPrice: 100,
			Step:       0.5,
			Interval:   time.Second,
		}
		mock.Start(ctx)
		log.Println("mock market feed started")
	} else {
		feed := market.Feed{
			URL:     cfg.MarketWSURL,
			Bus:     bus,
			Symbols: cfg.Symbols,
		}
		feed.Start(ctx)
	}

	// User activity stream feeds the action history behind rate_limit,
	// accumulation and sequence rules.
	if cfg.UserWSURL != "" {
		stream := history.UserStream{
			URL:     cfg.UserWSURL,
			Tracker: tracker,
			Bus:     bus,
		}
		stream.Start(ctx)
	}

	server := api.NewServer(api.Options{
		Bus:       bus,
		Store:     store,
		Engine:    svc,
		Registry:  registry,
		Accounts:  accounts,
		Tracker:   tracker,
		Quotes:    quotes,
		Backend:   backendClient,
		JWTSecret: cfg.JWTSecret,
		Meta: api.SystemMeta{
			Symbols:     cfg.Symbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     buildVersion(),
		},
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// seedPlaybooks loads local YAML playbook definitions into the store and
// deploys the first valid one. Invalid definitions are logged and skipped; a
// broken file never blocks startup.
func seedPlaybooks(ctx context.Context, path string, registry *rules.Registry, store *db.Queries, svc *engine.Service) {
	defs, err := rules.LoadPlaybookFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("playbook file %s: %v", path, err)
		}
		return
	}

	deployed := false
	for _, def := range defs {
		pb, err := rules.BuildPlaybook(def, registry)
		if err != nil {
			log.Printf("playbook %q rejected: %v", def.Name, err)
			continue
		}

		raw, err := marshalPlaybookDef(def)
		if err != nil {
			log.Printf("playbook %q: %v", def.Name, err)
			continue
		}
		if err := store.SavePlaybook(ctx, raw); err != nil {
			log.Printf("playbook %q save failed: %v", def.Name, err)
			continue
		}

		if !deployed {
			gen := svc.Deploy(pb, def.Context)
			if err := store.MarkDeployed(ctx, def.Name); err != nil {
				log.Printf("playbook %q mark deployed: %v", def.Name, err)
			}
			log.Printf("playbook %q deployed from %s (generation %d)", def.Name, path, gen)
			deployed = true
		}
	}
}

// restoreDeployed re-activates the playbook that was live before the last
// shutdown, if any.
func restoreDeployed(ctx context.Context, registry *rules.Registry, store *db.Queries, svc *engine.Service) {
	records, err := store.ListPlaybooks(ctx)
	if err != nil {
		log.Printf("restore deployment: %v", err)
		return
	}
	for _, rec := range records {
		if !rec.Deployed {
			continue
		}
		pb, creq, err := rules.ParsePlaybookJSON([]byte(rec.Definition), registry)
		if err != nil {
			log.Printf("restore deployment %q: %v", rec.Name, err)
			return
		}
		gen := svc.Deploy(pb, creq)
		log.Printf("playbook %q restored (generation %d)", rec.Name, gen)
		return
	}
}

// marshalPlaybookDef converts a YAML-sourced definition into the canonical
// JSON stored for each playbook.
func marshalPlaybookDef(def rules.PlaybookDef) (db.PlaybookRecord, error) {
	definition, err := json.Marshal(def)
	if err != nil {
		return db.PlaybookRecord{}, fmt.Errorf("encode definition: %w", err)
	}
	rec := db.PlaybookRecord{Name: def.Name, Definition: string(definition)}
	if def.Context != nil {
		ctxJSON, err := json.Marshal(def.Context)
		if err != nil {
			return db.PlaybookRecord{}, fmt.Errorf("encode context request: %w", err)
		}
		rec.ContextRequest = string(ctxJSON)
	}
	return rec, nil
}

func buildVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
