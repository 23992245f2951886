package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mkoval/storecheck/internal/api"
	"github.com/mkoval/storecheck/internal/canonical"
	"github.com/mkoval/storecheck/internal/checksum"
	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/config"
	"github.com/mkoval/storecheck/internal/inspect"
	"github.com/mkoval/storecheck/internal/repair"
	"github.com/mkoval/storecheck/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storecheck server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(mcpFlag)
	},
}

var mcpFlag bool

func init() {
	serveCmd.Flags().BoolVar(&mcpFlag, "mcp", false, "also serve MCP tools on stdio")
}

func runServer(mcpEnabled bool) error {
	fmt.Fprintf(os.Stderr, "storecheck version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, mappings, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("closing providers", "error", err)
		}
	}()

	if len(reg.Names()) == 0 {
		return fmt.Errorf("no providers enabled for env %q", cfg.Inspector.Env)
	}
	logger.Info("providers registered", "env", cfg.Inspector.Env, "providers", strings.Join(reg.Names(), ","))

	inspector := inspect.New(reg, inspect.Options{
		Mappings: mappings,
		Compare: compare.Options{
			Fields:          cfg.Inspector.CompareFields,
			TTLFloorSeconds: cfg.Inspector.TTLFloorSeconds,
		},
		OverallTimeout: time.Duration(cfg.Inspector.OverallTimeoutMS) * time.Millisecond,
		BatchLimit:     cfg.Inspector.BatchConcurrency,
		Logger:         logger,
	})

	planner := repair.NewPlanner(cfg.Repair.Enabled)

	handler := api.NewHandler(api.Deps{
		Inspector: inspector,
		Token:     cfg.Server.Token,
		Env:       cfg.Inspector.Env,
		Planner:   planner,
		Logger:    logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storecheck listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if mcpEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Inspector: inspector, Env: cfg.Inspector.Env}, version)
		go serveMCP(ctx, mcpSrv, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serveMCP runs the MCP server over stdio until ctx is cancelled.
func serveMCP(ctx context.Context, mcpSrv *server.MCPServer, logger *slog.Logger) {
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server stopped", "error", err)
	}
}

// buildRegistry turns active provider config entries into registered
// adapters. Any constructor failure here aborts startup; configuration
// errors never surface mid-request.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*store.Registry, map[string]canonical.FieldMap, error) {
	fp := checksum.Fingerprinter{
		Method:    checksum.Method(cfg.Fingerprint.Method),
		Prefix:    cfg.Fingerprint.Prefix,
		Precision: cfg.Fingerprint.Precision,
	}
	if err := fp.Validate(); err != nil {
		return nil, nil, err
	}

	reg := store.NewRegistry(logger)
	mappings := make(map[string]canonical.FieldMap)

	for _, pc := range cfg.ActiveProviders() {
		var (
			p   store.Provider
			err error
		)
		switch pc.Family {
		case "relational":
			p, err = store.NewSQLProvider(store.SQLOptions{
				Name:      pc.Name,
				Driver:    pc.Driver,
				DSN:       pc.DSN,
				Table:     pc.Table,
				KeyColumn: pc.KeyColumn,
			})
		case "kv":
			p = store.NewRedisProvider(store.RedisOptions{
				Name:      pc.Name,
				Addr:      pc.Addr,
				Password:  pc.Password,
				DB:        pc.DB,
				KeyPrefix: pc.KeyPrefix,
			})
		case "vector":
			if pc.Driver == "sqlite" {
				p, err = store.NewSQLiteVecProvider(store.SQLiteVecOptions{
					Name:        pc.Name,
					DSN:         pc.DSN,
					Table:       pc.Table,
					KeyColumn:   pc.KeyColumn,
					VectorCol:   pc.VectorColumn,
					ModelColumn: pc.ModelColumn,
				}, fp)
			} else {
				p = store.NewQdrantProvider(store.QdrantOptions{
					Name:       pc.Name,
					BaseURL:    pc.BaseURL,
					APIKey:     pc.APIKey,
					Collection: pc.Collection,
					ModelField: pc.ModelField,
				}, fp)
			}
		default:
			err = fmt.Errorf("unknown family %q", pc.Family)
		}
		if err != nil {
			reg.Close()
			return nil, nil, fmt.Errorf("building provider %s: %w", pc.Name, err)
		}

		if err := reg.Register(p, time.Duration(pc.TimeoutMS)*time.Millisecond); err != nil {
			reg.Close()
			return nil, nil, err
		}
		if len(pc.Fields) > 0 {
			mappings[pc.Name] = canonical.DefaultFieldMap().Merge(pc.Fields)
		}
	}
	return reg, mappings, nil
}
