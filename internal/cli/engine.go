package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soyeahso/clinicbot/internal/assistant"
	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/events"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/notify"
	"github.com/soyeahso/clinicbot/internal/rag"
	"github.com/soyeahso/clinicbot/internal/store"
	"github.com/soyeahso/clinicbot/internal/store/pgstore"
)

// engine is everything a booking conversation needs, built from config.
type engine struct {
	db        *store.DB
	bookings  store.BookingRepository
	pipeline  *rag.Pipeline
	hooks     *hooks.Manager
	assistant *assistant.Assistant

	closers []func()
}

// Close releases the engine's connections in reverse order.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// loadConfig reads the config file and fails on validation issues.
func loadConfig(strict bool) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if !strict {
		return cfg, nil
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openDB opens the local SQLite database holding documents, transcripts and,
// for the sqlite driver, bookings.
func openDB(cfg config.Config) (*store.DB, error) {
	path := cfg.Store.Path
	if path == "" {
		path = paths.Database
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := store.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// openBookings returns the configured booking repository. The close func is
// never nil.
func openBookings(ctx context.Context, cfg config.Config, db *store.DB) (store.BookingRepository, func(), error) {
	if cfg.Store.Driver != "postgres" {
		return store.NewBookingStore(db), func() {}, nil
	}
	pg, err := pgstore.New(ctx, cfg.Store.DSN, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("using Postgres booking store")
	return pg, pg.Close, nil
}

// newEngine wires store, LLM, documents, mail, events and hooks into an
// assistant.
func newEngine(ctx context.Context, cfg config.Config) (_ *engine, err error) {
	e := &engine{hooks: hooks.NewManager(log)}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	e.db, err = openDB(cfg)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { e.db.Close() })

	var closeBookings func()
	e.bookings, closeBookings, err = openBookings(ctx, cfg, e.db)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeBookings)

	completer, model, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	if completer == nil {
		log.Warn().Msg("no LLM provider available; questions and document extraction will degrade")
	}

	e.pipeline, err = rag.NewPipeline(store.NewDocumentStore(e.db), completer, model, cfg.RAG, log)
	if err != nil {
		return nil, err
	}

	rules, err := booking.RulesFromConfig(cfg.Booking)
	if err != nil {
		return nil, err
	}
	validator, err := booking.NewValidator(rules)
	if err != nil {
		return nil, err
	}

	opts := booking.ControllerOptions{
		Completer:    completer,
		Retriever:    e.pipeline,
		Saver:        e.bookings,
		Model:        model,
		HistoryLimit: cfg.Session.HistoryLimit,
	}
	notifier, err := notify.FromConfig(ctx, cfg.Mail, log)
	if err != nil {
		log.Warn().Err(err).Msg("confirmation emails disabled")
	} else if notifier != nil {
		opts.Notifier = notifier
	}

	publisher, err := events.Connect(cfg.Events, log)
	if err != nil {
		log.Warn().Err(err).Msg("booking events disabled")
	} else if publisher != nil {
		publisher.Attach(e.hooks)
		e.closers = append(e.closers, publisher.Close)
	}

	e.assistant = assistant.New(assistant.Options{
		Controller:   booking.NewController(validator, opts, log),
		Documents:    e.pipeline,
		Transcripts:  store.NewTranscriptStore(e.db),
		Hooks:        e.hooks,
		HistoryLimit: cfg.Session.HistoryLimit,
	}, log)
	e.closers = append(e.closers, e.hooks.Wait)
	return e, nil
}

// newCompleter builds a failover client over the configured providers. It
// returns a nil completer when no provider has credentials.
func newCompleter(cfg config.Config) (rag.Completer, string, error) {
	registry, err := llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, "", err
	}
	if len(registry.List()) == 0 {
		return nil, "", nil
	}
	primary := cfg.LLM.Primary
	if _, ok := registry.Get(primary); !ok {
		primary = registry.List()[0]
	}
	log.Info().Strs("providers", registry.List()).Str("primary", primary).Msg("LLM providers available")
	return llm.NewFailover(registry, primary, cfg.LLM.Fallbacks, log), cfg.LLM.Providers[primary].Model, nil
}
