// Package app wires together the pieces of a single queryrt process:
// the task-runtime manager, its debug HTTP surface, and the
// start/signal/stop sequence, grounded on cmd/tempo/app/app.go's
// App.Run() (build a services.Manager, register a ManagerListener,
// start a signal handler, StartAsync/AwaitStopped).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	"github.com/driftql/queryrt/cmd/queryrt/build"
	"github.com/driftql/queryrt/pkg/taskrt"
	"github.com/driftql/queryrt/pkg/util/log"
)

// App is the root datastructure for a queryrt process.
type App struct {
	cfg Config

	Manager *taskrt.Manager
	router  *mux.Router
	server  *http.Server
}

// New builds an App in its initial state; nothing is started until Run
// is called.
func New(cfg Config) (*App, error) {
	mgr, err := taskrt.New(cfg.TaskRT)
	if err != nil {
		return nil, fmt.Errorf("failed to build task manager: %w", err)
	}

	a := &App{
		cfg:     cfg,
		Manager: mgr,
		router:  mux.NewRouter(),
	}
	a.registerRoutes()
	a.server = &http.Server{Addr: cfg.HTTPListenAddr, Handler: a.router}

	return a, nil
}

func (a *App) registerRoutes() {
	a.router.HandleFunc("/ready", a.readyHandler).Methods(http.MethodGet)
	a.router.HandleFunc("/buildinfo", a.buildinfoHandler).Methods(http.MethodGet)
	a.router.HandleFunc("/status", a.Manager.StatusHandler).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (a *App) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if a.Manager.State() != services.Running {
		http.Error(w, "task manager not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ready\n")
}

func (a *App) buildinfoHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, version.Print(build.AppName)+"\n")
}

// Run starts the task manager and the debug HTTP server, and blocks
// until a termination signal arrives or the manager fails, mirroring
// cmd/tempo/app/app.go's Run(): build a services.Manager over the
// process's long-running services, listen for its health/failure
// events, install a signal handler that stops the manager, and await
// its stopped state.
func (a *App) Run() error {
	sm, err := services.NewManager(a.Manager)
	if err != nil {
		return fmt.Errorf("failed to build service manager: %w", err)
	}

	healthy := func() { level.Info(log.Logger).Log("msg", "queryrt started") }
	stopped := func() { level.Info(log.Logger).Log("msg", "queryrt stopped") }
	serviceFailed := func(service services.Service) {
		sm.StopAsync()
		cause := service.FailureCase()
		if cause != nil && !errors.Is(cause, context.Canceled) {
			level.Error(log.Logger).Log("msg", "task manager failed", "err", cause)
		}
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	handler := signals.NewHandler(log.Logger)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	errCh := make(chan error, 1)
	go func() {
		level.Info(log.Logger).Log("msg", "debug HTTP server listening", "addr", a.cfg.HTTPListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err := sm.StartAsync(context.Background()); err != nil {
		return fmt.Errorf("failed to start service manager: %w", err)
	}

	awaitErr := sm.AwaitStopped(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.server.Shutdown(shutdownCtx)

	select {
	case err := <-errCh:
		return err
	default:
		return awaitErr
	}
}
