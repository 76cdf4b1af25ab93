package replica

import (
	"github.com/oneconcern/datasync/pkg/metrics"
	"go.opencensus.io/stats"
)

// M describes metrics for the replica package
type M struct {
	Volume struct {
		Cache   metrics.FilesMetrics `group:"cache" description:"files reused from the local store"`
		Network metrics.FilesMetrics `group:"network" description:"files downloaded from the remote source"`
	} `group:"volumetry" description:""`
	IO struct {
		Fetch  metrics.IOMetrics `group:"fetch" description:"remote fetches"`
		Commit metrics.IOMetrics `group:"commit" description:"local store commits"`
	} `group:"io" description:""`
	Sync struct {
		StaleInstances  *stats.Int64Measure `metric:"staleInstances" description:"sessions which found the local store rebuilt by another instance" extraviews:"sum"`
		CommitConflicts *stats.Int64Measure `metric:"commitConflicts" description:"retried commit conflicts" extraviews:"sum"`
		Degraded        *stats.Int64Measure `metric:"degraded" description:"sessions running network-only" extraviews:"sum" tags:"reason"`
	} `group:"sync" description:"local store synchronization"`
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for the replica package"`
}

func (s *Session) metricsOn() bool {
	return s.MetricsEnabled() && s.m != nil
}

func (s *Session) countDegraded(reason string) {
	if s.metricsOn() {
		metrics.Inc(s.m.Sync.Degraded, map[string]string{"reason": reason})
	}
}
