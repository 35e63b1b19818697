package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.opentelemetry.io/otel"

	"github.com/zombor/auto-accounting/internal/backend"
	"github.com/zombor/auto-accounting/internal/imagestate"
	"github.com/zombor/auto-accounting/internal/ledger"
	"github.com/zombor/auto-accounting/internal/preview"
	"github.com/zombor/auto-accounting/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("auto-accounting")
	var (
		port           = fs.IntLong("port", 3000, "HTTP server port")
		backendURL     = fs.StringLong("backend-url", backend.DefaultBaseURL, "Backend base URL")
		backendTimeout = fs.DurationLong("backend-timeout", 0, "Backend call timeout (0 waits indefinitely)")
		previewStore   = fs.StringLong("preview-store", "memory", "Preview storage: 'memory', 'disk' or 'bolt'")
		previewDir     = fs.StringLong("preview-dir", filepath.Join(os.TempDir(), "auto-accounting-previews"), "Directory for disk and bolt preview storage")
		catalogPath    = fs.StringLong("catalog", "", "YAML price list replacing the sample catalog (optional)")
		sessionTTL     = fs.DurationLong("session-ttl", 30*time.Minute, "Idle time after which a session and its image are dropped (0 keeps them until shutdown)")
		otlpEndpoint   = fs.StringLong("otlp-endpoint", "", "OTLP/HTTP endpoint for traces (optional)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_              = fs.StringLong("config", "", "Config file with one 'flag value' per line (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AUTO_ACCOUNTING"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config{
		port:           *port,
		backendURL:     *backendURL,
		backendTimeout: *backendTimeout,
		previewStore:   *previewStore,
		previewDir:     *previewDir,
		catalogPath:    *catalogPath,
		sessionTTL:     *sessionTTL,
		otlpEndpoint:   *otlpEndpoint,
		auth:           web.BasicAuth{Username: *authUser, Password: *authPass},
	}); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

type config struct {
	port           int
	backendURL     string
	backendTimeout time.Duration
	previewStore   string
	previewDir     string
	catalogPath    string
	sessionTTL     time.Duration
	otlpEndpoint   string
	auth           web.BasicAuth
}

func run(ctx context.Context, cfg config) error {
	tp, err := backend.NewTracerProvider(ctx, cfg.otlpEndpoint, "auto-accounting")
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	if tp != nil {
		otel.SetTracerProvider(tp)
		slog.Info("Tracing enabled", "endpoint", cfg.otlpEndpoint)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Failed to flush traces", "error", err)
			}
		}()
	}

	slog.Info("Initializing preview storage...", "type", cfg.previewStore)
	storage, closeStorage, err := newPreviewStorage(cfg.previewStore, cfg.previewDir)
	if err != nil {
		return fmt.Errorf("initializing preview storage: %w", err)
	}
	defer closeStorage()

	catalog := ledger.DefaultCatalog()
	if cfg.catalogPath != "" {
		catalog, err = ledger.LoadPriceList(cfg.catalogPath)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
	}

	previews := preview.NewManager(storage)
	sessions := imagestate.NewRegistry(previews, cfg.sessionTTL)
	// Runs after the server has stopped, releasing every preview still held
	defer sessions.Close()

	if cfg.sessionTTL > 0 {
		go sessions.Run(ctx, cfg.sessionTTL/2)
	} else {
		slog.Info("Session expiry disabled")
	}

	client := backend.NewClient(cfg.backendURL, cfg.backendTimeout)
	slog.Info("Backend configured", "url", client.BaseURL()+backend.BinarizePath)

	server := web.NewServer(sessions, previews, client, catalog, cfg.auth)
	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	if err := server.Start(ctx, addr); err != nil {
		return err
	}
	slog.Info("Shutting down...")
	return nil
}

func newPreviewStorage(kind, dir string) (preview.Storage, func(), error) {
	switch kind {
	case "memory":
		return preview.NewMemoryStorage(), func() {}, nil
	case "disk":
		store, err := preview.NewLocalStorage(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "bolt":
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating preview directory: %w", err)
		}
		store, err := preview.NewBoltStorage(filepath.Join(dir, "previews.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close preview database", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("invalid preview storage %q (valid: memory, disk, bolt)", kind)
	}
}
