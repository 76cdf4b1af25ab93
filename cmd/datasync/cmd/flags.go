// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"strings"

	"github.com/oneconcern/datasync/pkg/dlogger"
	"github.com/oneconcern/datasync/pkg/replica"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	backendBadger = "badger"
	backendSQLite = "sqlite"
)

type flagsT struct {
	root struct {
		logLevel string
		metrics  bool
		credFile string
	}
	sync struct {
		Remote      string
		Output      string
		Concurrency int
		Retries     uint64
		Quiet       bool
	}
	store struct {
		Dir          string
		Backend      string
		Name         string
		MemTableSize string
	}
	config struct {
		Target string
	}
	metrics *M
}

var datasyncFlags = flagsT{}

func addLogLevel(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&datasyncFlags.root.logLevel, logLevel, dlogger.LogLevelWarn,
		fmt.Sprintf("The logging level. Levels by increasing order of verbosity: %s, error, %s, %s, %s",
			dlogger.LogLevelNone, dlogger.LogLevelWarn, dlogger.LogLevelInfo, dlogger.LogLevelDebug))
	return logLevel
}

func addMetricsFlag(cmd *cobra.Command) string {
	enable := "metrics"
	cmd.PersistentFlags().BoolVar(&datasyncFlags.root.metrics, enable, false, "Toggle telemetry on commands. Metrics are logged at info level")
	return enable
}

func addCredentialFile(cmd *cobra.Command) string {
	credential := "credential"
	cmd.PersistentFlags().StringVar(&datasyncFlags.root.credFile, credential, "", "The path to the credential file for Google Cloud Storage remotes")
	return credential
}

func addRemoteFlag(cmd *cobra.Command) string {
	remote := "remote"
	cmd.Flags().StringVar(&datasyncFlags.sync.Remote, remote, "",
		"The remote source publishing the dataset: gs://bucket[/prefix], s3://bucket[/prefix], http(s)://host/path or a local directory")
	return remote
}

func addOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&datasyncFlags.sync.Output, output, "", "A directory to write the dataset files to")
	return output
}

func addConcurrencyFlag(cmd *cobra.Command) string {
	concurrency := "concurrency"
	cmd.Flags().IntVar(&datasyncFlags.sync.Concurrency, concurrency, replica.DefaultConfig().Concurrency, "The maximum number of parallel downloads")
	return concurrency
}

func addRetriesFlag(cmd *cobra.Command) string {
	retries := "retries"
	cmd.Flags().Uint64Var(&datasyncFlags.sync.Retries, retries, 3, "The number of retries on a failed fetch from the remote source")
	return retries
}

func addQuietFlag(cmd *cobra.Command) string {
	quiet := "quiet"
	cmd.Flags().BoolVar(&datasyncFlags.sync.Quiet, quiet, false, "Do not print progress")
	return quiet
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&datasyncFlags.store.Dir, "store", "", "The directory holding the local store. An empty value runs network-only")
	cmd.Flags().StringVar(&datasyncFlags.store.Backend, "backend", backendBadger,
		fmt.Sprintf("The local store backend: %s or %s", backendBadger, backendSQLite))
	cmd.Flags().StringVar(&datasyncFlags.store.Name, "store-name", replica.DefaultStoreName, "The name of the database within the local store")
	cmd.Flags().StringVar(&datasyncFlags.store.MemTableSize, "memtable-size", "",
		"The size of badger memtables, e.g. 256MiB. Large memtables allow more files per sync (defaults to 64MiB)")
}

func addTargetFlag(cmd *cobra.Command) string {
	target := "target"
	cmd.Flags().StringVar(&datasyncFlags.config.Target, target, "",
		"The config file to write. Defaults to $HOME/.datasync/datasync.yaml")
	return target
}

// applyConfig fills unset flags from the configuration file or environment
func applyConfig(cmd *cobra.Command) {
	fromConfig := func(flag string, value string, set func(string)) {
		if f := cmd.Flags().Lookup(flag); f != nil && !f.Changed && value != "" {
			set(value)
		}
	}

	fromConfig("remote", config.Remote, func(v string) { datasyncFlags.sync.Remote = v })
	fromConfig("store", config.Store, func(v string) { datasyncFlags.store.Dir = v })
	fromConfig("backend", config.Backend, func(v string) { datasyncFlags.store.Backend = v })
	fromConfig("memtable-size", config.MemTableSize, func(v string) { datasyncFlags.store.MemTableSize = v })
	fromConfig("credential", config.Credential, func(v string) { datasyncFlags.root.credFile = v })
	fromConfig("loglevel", config.LogLevel, func(v string) { datasyncFlags.root.logLevel = v })
	if f := cmd.Flags().Lookup("concurrency"); f != nil && !f.Changed && config.Concurrency > 0 {
		datasyncFlags.sync.Concurrency = config.Concurrency
	}
	if f := cmd.Flags().Lookup("metrics"); f != nil && !f.Changed && viper.IsSet("metrics") {
		datasyncFlags.root.metrics = config.Metrics
	}
	datasyncFlags.store.Backend = strings.ToLower(datasyncFlags.store.Backend)
}
