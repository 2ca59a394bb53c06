package cli

import (
	"fmt"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/config"
	"github.com/DasMonkey/mindly-core/internal/router"
	"github.com/DasMonkey/mindly-core/internal/settings"
	"github.com/DasMonkey/mindly-core/internal/store"
)

// app is the wired application: router plus the resources it owns.
type app struct {
	cfg    config.Config
	router *router.Manager
	db     *store.DB
}

// buildApp loads config, opens the store, and wires both providers into a
// router. dbPath overrides the config store path ("" keeps it); tests pass
// ":memory:".
func buildApp(dbPath string) (*app, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return nil, fmt.Errorf("invalid configuration (%d issues)", len(issues))
	}

	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if dbPath == "" {
		dbPath = paths.DB
	}

	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, err
	}

	sm := settings.NewManager(store.NewSettingsStore(db), log)
	// A config-file key bootstraps the settings document once.
	if cfg.Cloud.APIKey != "" && sm.CloudAPIKey() == "" {
		if _, err := sm.Update(map[string]any{"cloudApiKey": cfg.Cloud.APIKey}); err != nil {
			log.Warn().Err(err).Msg("failed to seed cloud API key from config")
		}
	}

	archive := store.NewChatArchive(db, log)

	runtime := ai.NewOllamaRuntime(cfg.Runtime.BaseURL, cfg.Runtime.Model, log)
	builtin := ai.NewBuiltinProvider(runtime, log)
	builtin.SetArchive(archive)

	cloud := ai.NewCloudProvider(sm.CloudAPIKey, cfg.Cloud.Model, cfg.Cloud.BaseURL, log)
	cloud.SetArchive(archive)

	rt := router.New(sm, log)
	if err := rt.Register(builtin); err != nil {
		db.Close()
		return nil, err
	}
	if err := rt.Register(cloud); err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, router: rt, db: db}, nil
}

// Close releases providers and the database.
func (a *app) Close() {
	a.router.Cleanup()
	if a.db != nil {
		a.db.Close()
	}
}
