// Copyright © 2018 One Concern

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/remote"
	"github.com/oneconcern/datasync/pkg/replica"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load the dataset and update the local store",
	Long: `Load the dataset published on a remote source, reusing the files held by the local store.

Once the dataset is loaded, the local store is brought up to date with the remote source.
This last step is best effort: when another datasync process has taken over the local store,
the update is abandoned and the loaded dataset remains valid.`,
	Example: `datasync sync --remote gs://my-bucket/dataset --store ~/.cache/datasync --output ./data`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func(t0 time.Time) {
			cliUsage(t0, "sync", err)
		}(time.Now())

		ctx := context.Background()
		if datasyncFlags.sync.Remote == "" {
			wrapFatalln("a remote source is required", nil)
			return
		}

		source, err := openRemoteSource(ctx)
		if err != nil {
			wrapFatalln("remote source", err)
			return
		}
		opener, err := openLocalStore()
		if err != nil {
			wrapFatalln("local store", err)
			return
		}
		if opener != nil {
			defer opener.Close()
		}

		fetcher := remote.New(source, remote.Retries(datasyncFlags.sync.Retries), remote.Logger(logger))
		opts := []replica.Option{
			replica.WithConfig(replicaConfig()),
			replica.WithLogger(logger),
			replica.WithMetrics(datasyncFlags.root.metrics),
		}
		if !datasyncFlags.sync.Quiet {
			opts = append(opts, replica.WithProgress(newProgressPrinter(os.Stderr).print))
		}
		session := replica.NewSession(fetcher, opener, opts...)

		dataset, err := session.Load(ctx)
		if err != nil {
			switch {
			case errors.Is(err, status.ErrIndexInvalid):
				wrapFatalWithCodef(2, "the remote index is invalid: %v", err)
			case errors.Is(err, status.ErrTransportFailure):
				wrapFatalWithCodef(3, "could not fetch from the remote source: %v", err)
			default:
				wrapFatalln("load dataset", err)
			}
			return
		}

		if datasyncFlags.sync.Output != "" {
			if err = writeDataset(ctx, datasyncFlags.sync.Output, dataset); err != nil {
				wrapFatalln("write dataset", err)
				return
			}
		}

		commitErr := session.Wait()
		_ = session.Close()
		printSyncSummary(os.Stdout, session, dataset, commitErr)
	},
}

// writeDataset writes the files of the dataset, then its index, so the output directory
// may itself serve as a remote source.
func writeDataset(ctx context.Context, dir string, dataset *model.Dataset) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	output, err := localfs.NewAtomic(afero.NewBasePathFs(afero.NewOsFs(), dir))
	if err != nil {
		return err
	}
	manifest := dataset.Manifest()
	for _, name := range manifest.Names() {
		data, _ := dataset.Get(name)
		if err = output.Put(ctx, name, bytes.NewReader(data), storage.OverWrite); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return output.Put(ctx, model.IndexKey, bytes.NewReader(dataset.Index.Raw), storage.OverWrite)
}

func printSyncSummary(w io.Writer, session *replica.Session, dataset *model.Dataset, commitErr error) {
	manifest := dataset.Manifest()
	_, _ = fmt.Fprintf(w, "%s %d files (%s), version %s\n",
		color.GreenString("loaded"),
		len(manifest),
		units.HumanSize(float64(manifest.TotalSize(manifest.Names()))),
		manifest.Version(),
	)
	_, _ = fmt.Fprintf(w, "  from cache: %d, downloaded: %d\n",
		dataset.Count(model.SourceCache), dataset.Count(model.SourceNetwork))

	switch {
	case session.Stale():
		_, _ = fmt.Fprintf(w, "%s the local store was taken over by another process\n", color.YellowString("stale"))
	case commitErr != nil:
		_, _ = fmt.Fprintf(w, "%s local store not updated: %v\n", color.YellowString("warning"), commitErr)
	default:
		_, _ = fmt.Fprintf(w, "local store: %s (epoch %d)\n", session.CommitResult(), session.Epoch())
	}
}

type progressPrinter struct {
	mx   sync.Mutex
	w    io.Writer
	last int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: -1}
}

func (p *progressPrinter) print(progress replica.Progress) {
	pct := int(progress.Percent())
	p.mx.Lock()
	defer p.mx.Unlock()
	if pct == p.last {
		return
	}
	p.last = pct
	_, _ = fmt.Fprintf(p.w, "\r%s %3d%% %s / %s",
		color.CyanString("downloading"),
		pct,
		units.HumanSize(float64(progress.Done)),
		units.HumanSize(float64(progress.Total)),
	)
	if pct >= 100 {
		_, _ = fmt.Fprintln(p.w)
	}
}

func init() {
	addRemoteFlag(syncCmd)
	addStoreFlags(syncCmd)
	addOutputFlag(syncCmd)
	addConcurrencyFlag(syncCmd)
	addRetriesFlag(syncCmd)
	addQuietFlag(syncCmd)

	rootCmd.AddCommand(syncCmd)
}
