package cmd

import (
	"context"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/datasync/pkg/replica"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the content of the local store",
	Long: `Print the versioning variables and the index held by the local store, as YAML.

An epoch of 0 means that the local store has never been initialized.`,
	Example: `datasync status --store ~/.cache/datasync --backend sqlite`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "status", err)
		}(time.Now())

		opener, err := openLocalStore()
		if err != nil {
			wrapFatalln("local store", err)
			return
		}
		if opener == nil {
			wrapFatalln("a local store is required", nil)
			return
		}
		defer opener.Close()

		st, err := replica.Inspect(context.Background(), opener, replicaConfig())
		if err != nil {
			wrapFatalln("inspect local store", err)
			return
		}
		o, err := yaml.Marshal(st)
		if err != nil {
			wrapFatalln("serialize status to yaml", err)
			return
		}
		logStdOut("%s", o)

		switch {
		case st.Epoch == 0:
			infoLogger.Println(color.YellowString("empty"))
		case st.Consistent():
			infoLogger.Printf("%s %s", color.GreenString("consistent"), units.HumanSize(float64(st.Bytes)))
		default:
			infoLogger.Println(color.RedString("inconsistent"))
		}
	},
}

func init() {
	addStoreFlags(statusCmd)

	rootCmd.AddCommand(statusCmd)
}
