package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/agent"
	"github.com/fleetchat/fleetd/internal/config"
	"github.com/fleetchat/fleetd/internal/contacts"
	"github.com/fleetchat/fleetd/internal/events"
	"github.com/fleetchat/fleetd/internal/guidance"
	"github.com/fleetchat/fleetd/internal/llm"
	"github.com/fleetchat/fleetd/internal/paths"
	"github.com/fleetchat/fleetd/internal/relay"
	"github.com/fleetchat/fleetd/internal/usage"
)

// relayStopTimeout bounds the final drain and offline publish.
const relayStopTimeout = 5 * time.Second

// app is the wiring shared by the commands that talk to a model.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *events.Bus
	gateway *llm.Gateway
	usage   *usage.Store

	closers []func() error
}

// newApp loads configuration and builds the gateway. Usage recording
// is attached when enabled; the relay is started when a broker is
// configured.
func newApp(ctx context.Context, stderr io.Writer, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(stderr, config.LevelTrace)
	if err != nil {
		return nil, err
	}
	if cfg.Path() != "" {
		logger.Debug("config loaded", "path", cfg.Path())
	}

	a := &app{cfg: cfg, logger: logger, bus: events.New()}

	router, provider, err := llm.NewRouter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []llm.GatewayOption{
		llm.WithEvents(a.bus),
		llm.WithDefaults(llm.DefaultsFromConfig(cfg)),
		llm.WithLogger(logger),
	}

	if cfg.Usage.Enabled {
		store, err := a.openUsage()
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithUsageSink(usage.NewRecorder(store, cfg.Pricing, logger)))
	}
	a.gateway = llm.NewGateway(router, provider, opts...)

	if cfg.Relay.Enabled() {
		if err := a.startRelay(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) resolve(path string) string {
	return a.cfg.Resolver().Resolve(path)
}

func (a *app) openUsage() (*usage.Store, error) {
	if a.usage != nil {
		return a.usage, nil
	}
	path := a.resolve(a.cfg.Usage.Path)
	if err := paths.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create usage dir: %w", err)
	}
	store, err := usage.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	a.usage = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// startRelay connects before returning so that events emitted by a
// one-shot command are forwarded, then runs the forward loop in the
// background. The closer drains and disconnects.
func (a *app) startRelay(ctx context.Context) error {
	id, err := relay.LoadOrCreateInstanceID(paths.ExpandHome(a.cfg.DataDir))
	if err != nil {
		return fmt.Errorf("relay instance id: %w", err)
	}
	pub := relay.New(a.cfg.Relay, id, a.bus, a.logger)

	runCtx, cancel := context.WithCancel(ctx)
	if err := pub.Connect(runCtx); err != nil {
		cancel()
		return fmt.Errorf("relay connect: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Run(runCtx)
	}()

	a.closers = append(a.closers, func() error {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), relayStopTimeout)
		defer stopCancel()
		err := pub.Stop(stopCtx)
		cancel()
		<-done
		return err
	})
	return nil
}

// newAgent builds the session store, contact directory, guidance and
// tool registry around the gateway.
func (a *app) newAgent() (*agent.Agent, error) {
	store, err := a.openSessions()
	if err != nil {
		return nil, err
	}

	dir, err := contacts.Open(a.resolve(a.cfg.Contacts.VCard), a.logger)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}

	docs, err := guidance.Load(a.resolve(a.cfg.Agent.GuidanceDir))
	if err != nil {
		return nil, fmt.Errorf("load guidance: %w", err)
	}

	tools := agent.NewToolRegistry()
	for _, spec := range agent.BuiltinTools(dir) {
		if err := tools.Register(spec); err != nil {
			return nil, err
		}
	}

	return agent.New(store, a.gateway, agent.ConfigFrom(a.cfg.Agent),
		agent.WithTools(tools),
		agent.WithGuidance(docs),
		agent.WithSurfaces(a2ui.NewSurfaceStore(a.logger)),
		agent.WithEvents(a.bus),
		agent.WithLogger(a.logger),
	)
}

func (a *app) openSessions() (agent.Store, error) {
	switch a.cfg.Sessions.Backend {
	case "", "memory":
		return agent.NewMemoryStore(), nil
	case "sqlite":
		path := a.resolve(a.cfg.Sessions.Path)
		if err := paths.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		s, err := agent.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", a.cfg.Sessions.Backend)
	}
}

// watchEvents prints every bus event to w until the app closes.
func (a *app) watchEvents(w io.Writer) {
	ch := a.bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fmt.Fprintln(w, events.Format(ev))
		}
	}()
	a.closers = append(a.closers, func() error {
		a.bus.Unsubscribe(ch)
		<-done
		return nil
	})
}

// close runs closers in reverse order and joins their errors.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// options builds gateway options from the shared provider/model flags.
func options(provider, model string) llm.Options {
	return llm.Options{Provider: provider, Model: model}
}
