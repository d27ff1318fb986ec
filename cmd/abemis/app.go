package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/klauspost/compress/gzhttp"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/abemis/portal/config"
	"github.com/abemis/portal/documents"
	"github.com/abemis/portal/events"
	"github.com/abemis/portal/formbuilder"
	"github.com/abemis/portal/location"
	"github.com/abemis/portal/metrics"
	eventstream "github.com/abemis/portal/processor/event-stream"
	formbuilderapi "github.com/abemis/portal/processor/formbuilder-api"
	locationapi "github.com/abemis/portal/processor/location-api"
	projectapi "github.com/abemis/portal/processor/project-api"
	projectmonitor "github.com/abemis/portal/processor/project-monitor"
	"github.com/abemis/portal/projects"
	"github.com/abemis/portal/storage"
)

// portalComponent is what the server needs from a mounted component.
type portalComponent interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Meta() component.Metadata
	Health() component.HealthStatus
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// mount places a component under the API prefix.
type mount struct {
	route string
	comp  portalComponent
	// raw mounts skip compression and instrumentation, which would hide
	// the connection hijacker websockets need.
	raw bool
}

// App wires the portal's services together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Storage
	kv      storage.KV
	closeKV func() error
	blobs   documents.BlobStore

	publisher events.Publisher
	registry  *prometheus.Registry
	metrics   *metrics.Metrics

	repo   *formbuilder.Repository
	coder  *projects.TrackingCoder
	store  *projects.Store
	mounts []mount
}

// NewApp creates an application for cfg. Nothing is opened until Open.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:       cfg,
		logger:    logger,
		publisher: events.Nop{},
	}, nil
}

// OpenStorage connects to NATS when the configuration needs it and opens
// the key-value backend and form repository. The formbuilder commands stop
// here.
func (a *App) OpenStorage(ctx context.Context) error {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(a.registry)
	}

	if a.cfg.NeedsNATS() {
		if err := a.startNATS(ctx); err != nil {
			return fmt.Errorf("start NATS: %w", err)
		}
		a.publisher = events.NewNATSPublisher(a.natsConn)
	}

	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.kv = storage.NewMemoryStore()
	case config.BackendNATS:
		kv, err := storage.NewNATSStore(ctx, a.js, storage.NATSOptions{
			Bucket:  a.cfg.Storage.Bucket,
			History: a.cfg.Storage.History,
		})
		if err != nil {
			return fmt.Errorf("open KV bucket: %w", err)
		}
		a.kv = kv
	case config.BackendSQLite:
		kv, err := storage.OpenSQLiteStore(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.kv = kv
		a.closeKV = kv.Close
	}
	a.logger.Info("Storage ready", "backend", a.cfg.Storage.Backend)

	a.repo = formbuilder.NewRepository(a.kv,
		formbuilder.WithLogger(a.logger),
		formbuilder.WithPublisher(a.publisher),
		formbuilder.WithMetrics(a.metrics),
	)
	return nil
}

// Open prepares everything the server runs: storage, the document store,
// and the HTTP components.
func (a *App) Open(ctx context.Context) error {
	if err := a.OpenStorage(ctx); err != nil {
		return err
	}

	coder, err := projects.NewTrackingCoder()
	if err != nil {
		return err
	}
	a.coder = coder
	a.store = projects.NewStore(a.kv, coder,
		projects.WithStoreLogger(a.logger),
		projects.WithStorePublisher(a.publisher),
		projects.WithStoreMetrics(a.metrics),
	)

	if err := a.openBlobs(ctx); err != nil {
		return err
	}
	return a.buildComponents()
}

func (a *App) openBlobs(ctx context.Context) error {
	docs := a.cfg.Documents
	switch docs.Backend {
	case config.BackendS3:
		blobs, err := documents.NewS3BlobStore(ctx, documents.S3Options{
			Bucket:          docs.Bucket,
			Region:          docs.Region,
			Endpoint:        docs.Endpoint,
			PathStyle:       docs.PathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return fmt.Errorf("open document bucket: %w", err)
		}
		a.blobs = blobs
	default:
		a.blobs = documents.NewMemoryBlobStore()
	}
	a.logger.Info("Document store ready", "backend", docs.Backend)
	return nil
}

func (a *App) buildComponents() error {
	fb, err := formbuilderapi.New(formbuilderapi.DefaultConfig(), a.repo, a.logger)
	if err != nil {
		return fmt.Errorf("create formbuilder-api: %w", err)
	}

	locCfg := locationapi.DefaultConfig()
	locCfg.BaseURL = a.cfg.Location.BaseURL
	client := location.NewClient(a.cfg.Location.BaseURL,
		location.WithTimeout(a.cfg.Location.Timeout),
		location.WithLogger(a.logger),
		location.WithMetrics(a.metrics),
	)
	loc, err := locationapi.New(locCfg, client, a.logger)
	if err != nil {
		return fmt.Errorf("create location-api: %w", err)
	}

	projCfg := projectapi.DefaultConfig()
	projCfg.MaxUploadBytes = a.cfg.Documents.MaxUploadBytes
	proj, err := projectapi.New(projCfg, projectapi.Deps{
		Store: a.store,
		Blobs: a.blobs,
		Coder: a.coder,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create project-api: %w", err)
	}

	monCfg := projectmonitor.DefaultConfig()
	monCfg.CheckInterval = a.cfg.Monitor.CheckInterval.String()
	mon, err := projectmonitor.New(monCfg, a.store, a.logger,
		projectmonitor.WithPublisher(a.publisher),
		projectmonitor.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("create project-monitor: %w", err)
	}

	a.mounts = []mount{
		{route: "formbuilder", comp: fb},
		{route: "location", comp: loc},
		{route: "projects", comp: proj},
		{route: "monitor", comp: mon},
	}

	if a.natsConn != nil {
		stream, err := eventstream.New(eventstream.DefaultConfig(), a.natsConn, a.logger)
		if err != nil {
			return fmt.Errorf("create event-stream: %w", err)
		}
		a.mounts = append(a.mounts, mount{route: "events", comp: stream, raw: true})
	} else {
		a.logger.Info("Event stream disabled without NATS")
	}
	return nil
}

// Handler builds the root HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	base := strings.TrimSuffix(a.cfg.HTTP.Prefix, "/")

	for _, m := range a.mounts {
		prefix := base + "/" + m.route + "/"
		sub := http.NewServeMux()
		m.comp.RegisterHTTPHandlers(prefix, sub)

		var h http.Handler = sub
		if !m.raw {
			h = a.metrics.Instrument(m.route, h)
			if a.cfg.HTTP.Gzip {
				h = gzhttp.GzipHandler(h)
			}
		}
		mux.Handle(prefix, h)
		mux.Handle(strings.TrimSuffix(prefix, "/"), h)
	}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.cfg.Metrics.Enabled {
		mux.Handle("GET "+a.cfg.Metrics.Path, metrics.Handler(a.registry))
	}
	return mux
}

// handleHealth reports each component's health. Any unhealthy component
// turns the response into a 503.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	out := make(map[string]component.HealthStatus, len(a.mounts))
	for _, m := range a.mounts {
		h := m.comp.Health()
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		out[m.comp.Meta().Name] = h
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		a.logger.Warn("Failed to encode health", "error", err)
	}
}

// Run starts the components and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	for i, m := range a.mounts {
		if err := m.comp.Initialize(); err != nil {
			a.stopComponents(a.mounts[:i])
			return fmt.Errorf("initialize %s: %w", m.comp.Meta().Name, err)
		}
		if err := m.comp.Start(ctx); err != nil {
			a.stopComponents(a.mounts[:i])
			return fmt.Errorf("start %s: %w", m.comp.Meta().Name, err)
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.cfg.HTTP.Addr, "prefix", a.cfg.HTTP.Prefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down HTTP server")
		// Stop components first so websocket clients get a close frame.
		a.stopComponents(a.mounts)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// stopComponents stops mounts in reverse start order.
func (a *App) stopComponents(mounts []mount) {
	for i := len(mounts) - 1; i >= 0; i-- {
		c := mounts[i].comp
		if err := c.Stop(a.cfg.HTTP.ShutdownTimeout); err != nil {
			a.logger.Error("Failed to stop component", "component", c.Meta().Name, "error", err)
		}
	}
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL,
			nats.Name("abemis"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return wrapNATSError(err, a.cfg.NATS.URL)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("Starting embedded NATS server", "store_dir", a.cfg.NATS.StoreDir)
		opts := &server.Options{
			Port:      -1,
			JetStream: true,
			StoreDir:  a.cfg.NATS.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL(), nats.Name("abemis"))
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	// Fail early when the server has JetStream disabled.
	if _, err := js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("JetStream unavailable: %w", err)
	}
	return nil
}

// wrapNATSError adds guidance to common connection failures.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Start one with JetStream enabled (nats-server -js), or unset
ABEMIS_NATS_URL to use the embedded server.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}

// Close releases storage and NATS.
func (a *App) Close() {
	if a.closeKV != nil {
		if err := a.closeKV(); err != nil {
			a.logger.Warn("Failed to close store", "error", err)
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Debug("NATS drain failed", "error", err)
		}
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
