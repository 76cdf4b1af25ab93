package cmd

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var configGen = &cobra.Command{
	Use:   "generate",
	Short: "Generate a config",
	Long: `Generate a config to use for datasync, from the flags passed to this command.

The config file is placed in $HOME/.datasync/datasync.yaml, unless --target is specified.`,
	Example: `datasync config generate --remote gs://my-bucket/dataset --store ~/.cache/datasync --backend sqlite`,
	Run: func(cmd *cobra.Command, args []string) {
		target := datasyncFlags.config.Target
		if target == "" {
			usr, err := user.Current()
			if usr == nil || err != nil {
				wrapFatalln("could not get home directory for user", err)
				return
			}
			target = filepath.Join(usr.HomeDir, ".datasync", "datasync.yaml")
		}

		generated := CLIConfig{
			Remote:       datasyncFlags.sync.Remote,
			Store:        datasyncFlags.store.Dir,
			Backend:      datasyncFlags.store.Backend,
			MemTableSize: datasyncFlags.store.MemTableSize,
			Credential:   datasyncFlags.root.credFile,
			Concurrency:  datasyncFlags.sync.Concurrency,
			LogLevel:     datasyncFlags.root.logLevel,
			Metrics:      datasyncFlags.root.metrics,
		}
		o, err := yaml.Marshal(generated)
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}
		if err = os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			wrapFatalln("create config directory", err)
			return
		}
		if err = os.WriteFile(target, o, 0600); err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger.Printf("config written to %s", target)
	},
}

func init() {
	addRemoteFlag(configGen)
	addStoreFlags(configGen)
	addConcurrencyFlag(configGen)
	addTargetFlag(configGen)

	configCmd.AddCommand(configGen)
}
