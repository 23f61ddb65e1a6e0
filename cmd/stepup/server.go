package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/stepup/internal/api"
	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/banking"
	"github.com/kalambet/stepup/internal/config"
	"github.com/kalambet/stepup/internal/elicitation"
	"github.com/kalambet/stepup/internal/resume"
	"github.com/kalambet/stepup/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MCP server (stdio) and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("stdio")
		return runServer(stdio)
	},
}

func init() {
	serveCmd.Flags().Bool("stdio", true, "serve MCP tools over stdin/stdout")
}

// backend is what both storage implementations provide.
type backend interface {
	elicitation.Store
	elicitation.Queue
	io.Closer
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storage.OpenRedis(ctx, storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			QueueTTL: cfg.Elicitation.QueueTTL(),
		})
	default:
		return storage.Open(cfg.Storage.DataDir, storage.WithQueueTTL(cfg.Elicitation.QueueTTL()))
	}
}

func newResumer(cfg config.Config, verifier *auth.Verifier, payments *banking.Payments) (elicitation.Resumer, error) {
	if cfg.Resume.Mode == "http" {
		token, err := verifier.Issue("stepup", []string{auth.ScopeTransact}, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issuing resume token: %w", err)
		}
		return resume.NewHTTPResumer(cfg.Resume.BaseURL, token, cfg.Resume.TimeoutDuration()), nil
	}
	r := banking.NewResumer()
	payments.Register(r)
	return r, nil
}

func runServer(stdio bool) error {
	fmt.Fprintf(os.Stderr, "stepup version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Refuse to start twice on the same port.
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		printWarning("stepup is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	slog.Info("storage ready", "backend", cfg.Storage.Backend)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	notifier := api.NewLogNotifier(logger)
	manager := elicitation.NewManager(store, store, elicitation.Options{
		DefaultTimeout:    cfg.Elicitation.DefaultTimeout(),
		SupervisorTimeout: cfg.Elicitation.SupervisorTimeout(),
		TTLBuffer:         cfg.Elicitation.TTLBuffer(),
		Logger:            logger,
		Notifier:          notifier,
	})
	ledger := banking.NewLedger()
	payments := banking.NewPayments(manager, ledger, banking.NewOTPIssuer(cfg.Banking.DemoOTP),
		banking.WithTimeout(cfg.Elicitation.DefaultTimeout()),
		banking.WithLogger(logger),
		banking.WithNotifier(notifier),
	)
	resumer, err := newResumer(cfg, verifier, payments)
	if err != nil {
		return err
	}
	slog.Info("resume operations configured", "mode", cfg.Resume.Mode)

	deps := api.Deps{
		Manager:  manager,
		Handler:  elicitation.NewHandler(manager, resumer),
		Payments: payments,
		Ledger:   ledger,
		Verifier: verifier,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHTTPHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "stepup listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		elicitation.NewSweeper(manager, cfg.Elicitation.SweepEvery()).Run(gctx)
		return nil
	})

	if stdio {
		mcpSrv := api.NewMCPServer(deps)
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}
