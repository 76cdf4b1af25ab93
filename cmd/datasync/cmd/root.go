// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/oneconcern/datasync/pkg/dlogger"
	"github.com/oneconcern/datasync/pkg/metrics"
	"github.com/oneconcern/datasync/pkg/metrics/exporters/logexporter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "datasync",
	Short: "Datasync keeps a local replica of a published dataset",
	Long: `Datasync keeps a local replica of a versioned dataset published on some remote source.

The remote source publishes an index, listing every file with its revision, and the files themselves.
Datasync loads the dataset, reusing what the local store already holds, then brings the local store
up to date. Several datasync processes may share the same local store.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyConfig(cmd)
		l, err := dlogger.GetLogger(datasyncFlags.root.logLevel)
		if err != nil {
			wrapFatalln("invalid log level", err)
			return
		}
		logger = l
		if datasyncFlags.root.metrics {
			metrics.Init(
				metrics.WithBasePath("datasync"),
				metrics.WithExporter(logexporter.NewExporter(logger.Named("metrics"))),
			)
			datasyncFlags.metrics = metrics.EnsureMetrics("cli", &M{}).(*M)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	config *CLIConfig
	logger = zap.NewNop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addLogLevel(rootCmd)
	addMetricsFlag(rootCmd)
	addCredentialFile(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("datasync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range []string{"remote", "store", "backend", "memtablesize", "credential", "concurrency", "loglevel", "metrics"} {
		_ = viper.BindEnv(key)
	}

	if os.Getenv("DATASYNC_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("DATASYNC_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.datasync")
		viper.AddConfigPath("/etc/datasync")
		viper.SetConfigName("datasync")
	}

	viper.AutomaticEnv() // read in environment variables that match
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
	}
}
