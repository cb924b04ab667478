package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/pkg/errors"

	"github.com/zachfi/icystream/modules/relay"
)

const metricsNamespace = "icystream"

type App struct {
	cfg    Config
	logger slog.Logger

	Server *server.Server
	relay  *relay.Relay

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service
}

// New creates an App running the modules selected by cfg.Target.
func New(cfg Config, logger slog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if a.cfg.Target == "" {
		a.cfg.Target = All
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "failed to setup module manager")
	}

	return a, nil
}

func (a *App) Run() error {
	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to init module services %w", err)
	}
	a.serviceMap = serviceMap

	servs := []services.Service(nil)
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	if a.Server != nil {
		a.Server.HTTP.Path("/status").Methods(http.MethodGet).HandlerFunc(a.statusHandler)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	// Listen for events from this manager, and log them.
	healthy := func() { a.logger.Info("started", "target", a.cfg.Target, "modules", a.moduleNames()) }
	stopped := func() { a.logger.Info("stopped", "target", a.cfg.Target) }
	serviceFailed := func(service services.Service) {
		// if any service fails, stop everything
		sm.StopAsync()

		// let's find out which module failed
		for m, s := range serviceMap {
			if s == service {
				if service.FailureCase() == modules.ErrStopProcess {
					a.logger.Info("received stop signal via return error", "module", m, "err", service.FailureCase())
				} else {
					a.logger.Error("module failed", "module", m, "err", service.FailureCase())
				}
				return
			}
		}

		a.logger.Error("module failed", "module", "unknown", "err", service.FailureCase())
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	// Setup signal handler. If signal arrives, we stop the manager, which stops all the services.
	handler := signals.NewHandler(a.Server.Log)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	// Start all services. This can really only fail if some service is already
	// in other state than New, which should not be the case.
	err = sm.StartAsync(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	return sm.AwaitStopped(context.Background())
}

func (a *App) moduleNames() []string {
	names := make([]string, 0, len(a.serviceMap))
	for m := range a.serviceMap {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// statusHandler reports the state of every running module and, when the
// relay runs, its listener count.
func (a *App) statusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	for _, m := range a.moduleNames() {
		fmt.Fprintf(w, "%s %s\n", m, a.serviceMap[m].State())
	}
	if a.relay != nil {
		fmt.Fprintf(w, "relay_listeners %d\n", a.relay.Listeners())
	}
}
