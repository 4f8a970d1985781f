// Package cmd defines and implements the CLI commands for the webconnector executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/app"
	"github.com/JakeFAU/web-connector/internal/config"
	"github.com/JakeFAU/web-connector/internal/connector"
	"github.com/JakeFAU/web-connector/internal/logging"
	"github.com/JakeFAU/web-connector/internal/sink"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// annotationSlim marks commands that need the slim reconciliation settings.
const annotationSlim = "webconnector/slim"

// App defines the application interface that commands will use.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetSink() *sink.JSONLines
	NewConnector(ctx context.Context) (*connector.WebConnector, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// flagBindings maps persistent flags to their viper keys.
var flagBindings = map[string]string{
	"base-url":         "connector.base_url",
	"mode":             "connector.mode",
	"batch-size":       "connector.batch_size",
	"mintlify-cleanup": "connector.mintlify_cleanup",
	"connector-id":     "connector.connector_id",
	"credential-id":    "connector.credential_id",
	"output":           "output.path",
	"metrics-addr":     "metrics.addr",
	"development":      "logging.development",
	"headful":          "headless.headful",
	"host-qps":         "crawler.host_qps",
	"db-dsn":           "db.dsn",
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "webconnector",
		Short: "Crawls websites into batches of indexable documents.",
		Long: `webconnector turns a website into batches of documents. It can crawl a
site recursively from a seed URL, fetch a single page, expand a sitemap, or
read an explicit list of URLs, rendering each page in headless Chrome and
extracting PDFs directly.`,
		SilenceUsage: true,

		// Builds the application once the config is known and stores it in the
		// context for subcommands.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cfgFile, cmd.Annotations[annotationSlim] == "true")
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("base-url", "", "seed URL, sitemap URL, or URL list file in upload mode")
	flags.String("mode", "", "recursive, single, sitemap or upload")
	flags.Int("batch-size", 0, "documents per emitted batch")
	flags.Bool("mintlify-cleanup", true, "drop Mintlify navigation chrome from pages")
	flags.Int64("connector-id", 0, "connector ID for slim reconciliation")
	flags.Int64("credential-id", 0, "credential ID for slim reconciliation")
	flags.String("output", "", "output file for JSON lines, - for stdout")
	flags.String("metrics-addr", "", "serve /metrics, /healthz and /v1/status on this address")
	flags.Bool("development", false, "human-friendly console logging")
	flags.Bool("headful", false, "show the browser window")
	flags.Float64("host-qps", 0, "maximum requests per second per host, 0 for unlimited")
	flags.String("db-dsn", "", "Postgres DSN of the document index")
	bindFlags(v, flags)

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSlimCmd())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func loadConfig(v *viper.Viper, path string, slim bool) (config.Config, error) {
	cfg, err := config.Load(v, path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	validate := cfg.Validate
	if slim {
		validate = cfg.ValidateSlim
	}
	if err := validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
