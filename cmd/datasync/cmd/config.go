package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// field names are kept identical to the serialized names, so viper may unmarshal them
	Remote       string `json:"remote,omitempty" yaml:"remote,omitempty"`             // Remote source of the dataset
	Store        string `json:"store,omitempty" yaml:"store,omitempty"`               // Directory of the local store
	Backend      string `json:"backend,omitempty" yaml:"backend,omitempty"`           // Local store backend
	MemTableSize string `json:"memtablesize,omitempty" yaml:"memtablesize,omitempty"` // Size of badger memtables
	Credential   string `json:"credential,omitempty" yaml:"credential,omitempty"`     // Credentials to use for GCS
	Concurrency  int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`   // Parallel downloads
	LogLevel     string `json:"loglevel,omitempty" yaml:"loglevel,omitempty"`         // Logging level
	Metrics      bool   `json:"metrics,omitempty" yaml:"metrics,omitempty"`           // Telemetry toggle
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage datasync CLI config.

Configuration for datasync is the common set of flags that do not change across runs,
such as the remote source and the location of the local store.

Explicit flags always take precedence over the config file. Settings may also be passed
as environment variables, e.g. DATASYNC_REMOTE.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
