package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weavemesh/weave/src/config"
	"github.com/weavemesh/weave/src/docgraph"
	"github.com/weavemesh/weave/src/node"
	vers "github.com/weavemesh/weave/src/version"
)

var (
	conf    *config.Config
	datadir *string
	version *bool
)

func init() {
	conf = config.NewDefaultConfig()

	cobra.OnInitialize(initConfig)

	// Base datadir
	datadir = rootCmd.PersistentFlags().StringP("datadir", "d", conf.DataDir, "Base configuration directory")

	// Various
	rootCmd.PersistentFlags().String("backend", conf.Backend, "Store backend (inmem, badger, sqlite)")
	rootCmd.PersistentFlags().String("db", conf.DatabaseDir, "Database directory")
	rootCmd.PersistentFlags().String("log", conf.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("log-file", conf.LogFile, "Duplicate log output to this file")

	// Scheduler configuration
	rootCmd.PersistentFlags().Int("workers", conf.Workers, "Size of the materialization worker pool")
	rootCmd.PersistentFlags().Duration("retry-base", conf.RetryBase, "Initial backoff after a storage failure")
	rootCmd.PersistentFlags().Duration("max-retry-interval", conf.MaxRetryInterval, "Cap on the retry backoff")

	// Version
	version = rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version and exit")
}

func initConfig() {
	viper.AddConfigPath(*datadir)
	viper.SetConfigName("weave")

	viper.BindPFlags(rootCmd.PersistentFlags())

	if err := viper.ReadInConfig(); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	if err := viper.Unmarshal(conf); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	conf.SetDataDir(*datadir)
}

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Weave document materialization node",
	Long:  "Weave document materialization node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if *version {
			fmt.Println(vers.Version)

			return nil
		}

		logger := conf.Logger()

		logger.WithFields(logrus.Fields{
			"datadir":            conf.DataDir,
			"backend":            conf.Backend,
			"db":                 conf.DatabaseDir,
			"log":                conf.LogLevel,
			"workers":            conf.Workers,
			"retry-base":         conf.RetryBase,
			"max-retry-interval": conf.MaxRetryInterval,
		}).Debug("RUN")

		store, err := openStore(conf)
		if err != nil {
			return fmt.Errorf("cannot open store: %v", err)
		}

		n := node.NewNode(conf, store)
		if err := n.Init(); err != nil {
			return fmt.Errorf("cannot initialize node: %v", err)
		}

		// Operations reach the node through the replication layer; the
		// daemon just keeps materialization running until interrupted.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		n.Shutdown()

		return nil
	},
}

func openStore(conf *config.Config) (docgraph.Store, error) {
	switch conf.Backend {
	case config.InmemBackend:
		return docgraph.NewInmemStore(), nil
	case config.BadgerBackend:
		if err := os.MkdirAll(conf.DatabaseDir, 0700); err != nil {
			return nil, err
		}
		return docgraph.NewBadgerStore(conf.DatabaseDir)
	case config.SqliteBackend:
		if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
			return nil, err
		}
		return docgraph.NewSqliteStore(conf.SqlitePath())
	default:
		return nil, fmt.Errorf("unknown backend %q", conf.Backend)
	}
}

// Execute ...
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)

		os.Exit(1)
	}
}
