package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"compliance/internal/app"
	"compliance/internal/platform/config"
	"compliance/internal/platform/logger"
	id "compliance/pkg/domain"
)

// opener builds the services the commands run against.
type opener func(cfg config.Server, logger *slog.Logger) (*app.App, error)

func openApp(cfg config.Server, logger *slog.Logger) (*app.App, error) {
	return app.Build(cfg, prometheus.NewRegistry(), logger)
}

type cli struct {
	v       *viper.Viper
	open    opener
	app     *app.App
	logger  *slog.Logger
	signals func() (<-chan os.Signal, func())
}

func newRootCmd(open opener, signals func() (<-chan os.Signal, func())) *cobra.Command {
	c := &cli{v: viper.New(), open: open, signals: signals}

	root := &cobra.Command{
		Use:   "privacyctl",
		Short: "Operator CLI for the compliance ledgers",
		Long: `privacyctl runs compliance operations directly against the configured
stores (DATABASE_URL, REDIS_URL, KAFKA_BROKERS), acting as one operator of
one tenant.

Every flag can also be set through a PRIVACYCTL_* environment variable or a
YAML config file passed with --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("tenant", "", "Tenant ID (UUID)")
	pf.String("actor", "", "Operator ID (UUID)")
	pf.StringP("output", "o", "table", "Output format: table, json, yaml")
	pf.String("database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	pf.Bool("verbose", false, "Log at debug level")
	bindFlags(c.v, pf)

	root.AddCommand(
		c.candidatesCmd(),
		c.bulkCmd(),
		c.anonymizeCmd(),
		c.dashboardCmd(),
		c.auditCmd(),
	)
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	v.SetEnvPrefix("PRIVACYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f) //nolint:errcheck // flag comes from fs, lookup cannot fail
	})
}

func (c *cli) setup(cmd *cobra.Command) error {
	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := slog.LevelInfo
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	c.logger = logger.NewWithWriter(cmd.ErrOrStderr(), level)

	cfg := config.FromEnv()
	if url := c.v.GetString("database-url"); url != "" {
		cfg.Database.URL = url
	}

	a, err := c.open(cfg, c.logger)
	if err != nil {
		return err
	}
	if a.Storage == app.StorageMemory {
		c.logger.Warn("DATABASE_URL not set, running against empty in-memory ledgers")
	}
	c.app = a
	return nil
}

func (c *cli) actor() (id.Actor, error) {
	actorID, err := id.ParseActorID(c.v.GetString("actor"))
	if err != nil {
		return id.Actor{}, errors.New("--actor must be a UUID")
	}
	tenantID, err := id.ParseTenantID(c.v.GetString("tenant"))
	if err != nil {
		return id.Actor{}, errors.New("--tenant must be a UUID")
	}
	return id.NewActor(actorID, tenantID), nil
}

func (c *cli) output(w io.Writer, v any, headers []string, rows [][]string) error {
	switch format := c.v.GetString("output"); format {
	case "json":
		return printJSON(w, v)
	case "yaml":
		return printYAML(w, v)
	case "table", "":
		printTable(w, headers, rows)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (use table, json or yaml)", format)
	}
}
