package cmd

import (
	"time"

	"github.com/oneconcern/datasync/pkg/metrics"
)

// M describes metrics for the cmd package
type M struct {
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for datasync CLI"`
}

// cliUsage records a usage metric in the CLI context in a single go.
// This is intended to be used in some defer statement.
//
// Metrics are flushed as soon as the command is done.
func cliUsage(t0 time.Time, command string, err error) {
	if datasyncFlags.root.metrics && datasyncFlags.metrics != nil {
		datasyncFlags.metrics.Usage.Record(t0, command)(err)
		metrics.Flush()
	}
}
