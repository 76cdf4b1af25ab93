package metrics

import (
	"time"

	"go.opencensus.io/stats"
)

// FilesMetrics counts files and their sizes
type FilesMetrics struct {
	FileCount *stats.Int64Measure `metric:"fileCount" description:"number of files" extraviews:"sum" tags:"kind,operation"`
	FileSize  *stats.Int64Measure `metric:"fileSize" unit:"bytes" description:"size of files" extraviews:"sum" tags:"kind,operation"`
}

// Record one file of some size
func (f *FilesMetrics) Record(size int64, operation string) {
	tags := map[string]string{"kind": "dataset", "operation": operation}
	Inc(f.FileCount, tags)
	Int64(f.FileSize, size, tags)
}

// IOMetrics reports about IO requests
type IOMetrics struct {
	Count        *stats.Int64Measure   `metric:"ioCount" description:"number of IO requests" tags:"kind,operation"`
	Timing       *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"response time in milliseconds" tags:"kind,operation"`
	Failures     *stats.Int64Measure   `metric:"ioFailures" description:"number of failed IOs" tags:"kind,operation"`
	IOSize       *stats.Int64Measure   `metric:"ioSize" unit:"bytes" description:"IO size in bytes" extraviews:"sum" tags:"kind,operation"`
	IOThroughput *stats.Float64Measure `metric:"throughput" unit:"bytespersec" description:"throughput of an unitary operation in bytes per second" tags:"kind,operation"`
}

// Record returns a function recording the outcome of an IO started at some time.
//
// This is intended to be deferred:
//
//	defer func(start time.Time) {
//	  m.IO.Fetch.Record(start, "fetch")(size, err)
//	}(time.Now())
func (n *IOMetrics) Record(start time.Time, operation string) func(int64, error) {
	return func(size int64, err error) {
		elapsed := time.Since(start)
		tags := map[string]string{"kind": "io", "operation": operation}
		Float64(n.Timing, milliseconds(elapsed), tags)
		Inc(n.Count, tags)
		if size > 0 {
			Int64(n.IOSize, size, tags)
		}
		if err != nil {
			Inc(n.Failures, tags)
			return
		}
		if size > 0 && elapsed > 0 {
			Float64(n.IOThroughput, float64(size)/elapsed.Seconds(), tags)
		}
	}
}

// UsageMetrics reports about calls to some entry point
type UsageMetrics struct {
	Count    *stats.Int64Measure   `metric:"usageCount" description:"number of calls" tags:"kind,method"`
	Failures *stats.Int64Measure   `metric:"usageFailures" description:"number of failed calls" tags:"kind,method"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"duration of a call" tags:"kind,method"`
}

// Record returns a function recording a call started at some time, with its error
func (u *UsageMetrics) Record(start time.Time, method string) func(error) {
	return func(err error) {
		tags := map[string]string{"kind": "usage", "method": method}
		Since(start, u.Timing, tags)
		Inc(u.Count, tags)
		if err != nil {
			Inc(u.Failures, tags)
		}
	}
}
