package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"streamkey-relay/web"
	"streamkey-relay/work/activity"
	"streamkey-relay/work/config"
	"streamkey-relay/work/credentials"
	"streamkey-relay/work/logger"
	"streamkey-relay/work/relay"
	"streamkey-relay/work/upstream"
	"streamkey-relay/work/utils"
)

var (
	Version = "v0.1.0" // default version
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 15 * time.Second

type flags struct {
	configPath string
	dataDir    string
	listen     string
	logLevel   string
	logJSON    bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "streamkey-relay",
		Short:        "Start TikTok LIVE sessions through Streamlabs and extract the RTMP ingest details.",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, &f)
		},
	}

	bindFlags(cmd, &f)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "config.json", "path to the JSON config file")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "directory holding bearer-tokens.json and stream-logs.json")
	cmd.Flags().StringVar(&f.listen, "listen", "", "address to listen on, e.g. :3000")
	cmd.Flags().StringVarP(&f.logLevel, "log-level", "l", "", "log level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "log as JSON instead of colorized console output")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
}

// our main app worker
func main() {
	defer func() {
		if err := recover(); err != nil {
			buf := make([]byte, 64<<10)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Error("{main - main} panic: %v\n%s", err, buf)
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overlays explicitly set command line flags onto cfg.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = f.listen
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = f.logJSON
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = f.debug
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}
}

// newApp creates the data files and wires the stores, the upstream client
// and the relay service. The returned client must be closed by the caller.
func newApp(cfg *config.Config) (*app, *upstream.Client, error) {
	creds := credentials.NewStore(cfg.CredentialsPath())
	attempts := activity.New(cfg.ActivityPath(), cfg.LogRetention)

	if err := creds.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize data files: %w", err)
	}
	if err := attempts.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize data files: %w", err)
	}

	assets, err := web.Assets(cfg.StaticDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open static files: %w", err)
	}

	if cfg.UserAgent == "streamkey-relay" {
		cfg.UserAgent += "/" + Version
	}
	client, err := upstream.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	return &app{
		cfg:      cfg,
		creds:    creds,
		attempts: attempts,
		relay:    relay.NewService(creds, attempts, client, cfg.ObfuscateSecrets),
		assets:   assets,
	}, client, nil
}

func run(ctx context.Context, cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Error("{main - run} failed to load config: %v", err)
		return err
	}
	applyFlags(cmd, f, cfg)

	if err := logger.Init(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, File: cfg.LogFile}); err != nil {
		return err
	}
	defer logger.Close()

	a, client, err := newApp(cfg)
	if err != nil {
		logger.Error("{main - run} %v", err)
		return err
	}
	defer client.Close()

	router := mux.NewRouter()
	setupRoutes(router, a)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("{main - run} Starting streamkey-relay %s", Version)
	logger.Info("{main - run} Server configuration:")
	logger.Info("{main - run}   - Listen Address: %s", cfg.ListenAddr)
	logger.Info("{main - run}   - Data Directory: %s", cfg.DataDir)
	logger.Info("{main - run}   - Upstream: %s", utils.LogURL(cfg.ObfuscateSecrets, cfg.UpstreamURL))
	logger.Info("{main - run}   - Upstream Rate Limit: %d/min (0 = unlimited)", cfg.UpstreamRateLimit)
	logger.Info("{main - run}   - Max Concurrent Requests: %d", cfg.MaxConcurrentRequests)
	logger.Info("{main - run}   - Log Retention: %d", cfg.LogRetention)
	logger.Info("{main - run}   - Metrics Enabled: %v", cfg.MetricsEnabled)
	logger.Info("{main - run}   - Debug Enabled: %v", cfg.Debug)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("{main - run} server failed to start: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("{main - run} shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("{main - run} graceful shutdown failed: %v", err)
		return err
	}
	return nil
}
