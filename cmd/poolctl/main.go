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

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/internal/container"
	"github.com/ajitpratap0/connpool/pkg/admin"
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/adapters"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/observability"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var settingsFile string

	root := &cobra.Command{
		Use:   "poolctl",
		Short: "poolctl - connection pool lifecycle manager",
		Long: `poolctl creates, reconfigures and tests connection pools declared in a
resources file, and serves an admin API and metrics for running pools.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&settingsFile, "settings", "", "Path to settings YAML file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("poolctl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Println("Adapters:")
			for _, module := range adapters.GetCatalog().List() {
				fmt.Printf("  - %s\n", module)
			}
		},
	})

	validateCmd := &cobra.Command{
		Use:   "validate <resources.yaml>",
		Short: "Validate a resources file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := config.LoadResources(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d pools, %d resources\n", args[0], len(res.Pools), len(res.Resources))
			return nil
		},
	}
	root.AddCommand(validateCmd)

	var excluded []string
	diffCmd := &cobra.Command{
		Use:   "diff <current.yaml> <proposed.yaml>",
		Short: "Show how pools would be reconfigured",
		Long: `Compare two resources files and print, per pool, the reconfiguration
action and a unified diff of the pool configuration.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := config.LoadResources(args[0])
			if err != nil {
				return err
			}
			proposed, err := config.LoadResources(args[1])
			if err != nil {
				return err
			}
			return renderDiff(cmd.OutOrStdout(), current, proposed, excluded)
		},
	}
	diffCmd.Flags().StringSliceVar(&excluded, "exclude", nil, "Property names whose changes never recreate the pool")
	root.AddCommand(diffCmd)

	var application, module string
	pingCmd := &cobra.Command{
		Use:   "ping <resources.yaml> <pool>",
		Short: "Open a test connection to a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := setup(settingsFile)
			if err != nil {
				return err
			}
			res, err := config.LoadResources(args[0])
			if err != nil {
				return err
			}
			c, err := container.New(settings, res)
			if err != nil {
				return err
			}
			defer c.Close()

			id := core.PoolIdentity{Name: args[1], Application: application, Module: module}
			ctx, cancel := context.WithTimeout(cmd.Context(), settings.HealthCheck.Timeout+30*time.Second)
			defer cancel()
			if err := c.Unpooled.TestPool(ctx, id); err != nil {
				return err
			}
			fmt.Printf("pool %s: ok\n", id)
			return nil
		},
	}
	pingCmd.Flags().StringVar(&application, "application", "", "Application owning the pool")
	pingCmd.Flags().StringVar(&module, "module", "", "Module owning the pool")
	root.AddCommand(pingCmd)

	var adminAddr string
	serveCmd := &cobra.Command{
		Use:   "serve <resources.yaml>",
		Short: "Create all pools and serve the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), settingsFile, args[0], adminAddr)
		},
	}
	serveCmd.Flags().StringVar(&adminAddr, "admin-addr", ":8080", "Admin API listen address")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads settings and initializes logging and tracing.
func setup(settingsFile string) (*config.Settings, error) {
	settings, err := config.LoadSettings(settingsFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       settings.Log.Level,
		Encoding:    settings.Log.Encoding,
		Development: settings.Log.Development,
	}); err != nil {
		return nil, err
	}
	if err := observability.Initialize(observability.TracingConfig{
		Enabled:        settings.Tracing.Enabled,
		ServiceName:    settings.Tracing.ServiceName,
		ServiceVersion: version,
		SamplingRate:   1,
	}); err != nil {
		return nil, err
	}
	return settings, nil
}

func serve(ctx context.Context, settingsFile, resourcesFile, adminAddr string) error {
	settings, err := setup(settingsFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("component", "poolctl"))

	res, err := config.LoadResources(resourcesFile)
	if err != nil {
		return err
	}
	c, err := container.New(settings, res)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}

	r := chi.NewRouter()
	r.Mount("/", admin.NewHandler(c).Router())
	servers := []*http.Server{{Addr: adminAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}}
	if settings.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: settings.Metrics.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		log.Info("listening", zap.String("addr", srv.Addr))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	if serr := c.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	_ = observability.Shutdown(shutdownCtx)
	return err
}
