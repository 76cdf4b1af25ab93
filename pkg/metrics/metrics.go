// Package metrics collects opencensus measurements declared by struct tags.
//
// A package declares its measurements as a struct of *stats.Int64Measure and
// *stats.Float64Measure fields, or of the shared FilesMetrics, IOMetrics and
// UsageMetrics groups. EnsureMetrics allocates the measures and registers their views.
package metrics

import (
	"context"
	"path"
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	// global settings, superseded by the first call to Init
	mp       = defaultSettings()
	initOnce sync.Once
)

// Option defines some options to the metrics initialization
type Option func(*settings)

// WithBasePath defines the root for the registered metrics tree
func WithBasePath(location string) Option {
	return func(s *settings) {
		s.basePath = location
	}
}

// WithExporter conveys metrics to some backend collector
func WithExporter(exporter view.Exporter) Option {
	return func(s *settings) {
		if exporter != nil {
			s.exporter = flusher(exporter)
		}
	}
}

// WithReportingPeriod configures how often views are exported in the background.
// Durations under 1s are ignored.
func WithReportingPeriod(d time.Duration) Option {
	return func(s *settings) {
		s.period = d
	}
}

type settings struct {
	basePath string
	exporter *simpleFlusher
	period   time.Duration

	mx      sync.Mutex
	modules map[string]interface{}
	views   []*view.View
}

// defaultSettings define no exporter: collected data remains available to views
func defaultSettings() *settings {
	return &settings{
		modules: make(map[string]interface{}),
	}
}

func newSettings(opts ...Option) *settings {
	s := defaultSettings()
	for _, apply := range opts {
		apply(s)
	}
	if s.exporter != nil {
		view.RegisterExporter(s.exporter)
		if s.period >= time.Second {
			view.SetReportingPeriod(s.period)
		}
	}
	return s
}

// Init sets the exporter and the base path of all metrics.
//
// Only the first call matters. Metrics registered before Init are not exported.
func Init(opts ...Option) {
	initOnce.Do(func() {
		mp = newSettings(opts...)
	})
}

// Flush exports the current data of all registered views
func Flush() {
	mp.Flush()
}

// EnsureMetrics allocates and registers the measures declared by m, a pointer to a struct.
//
// Registering the same location again returns the first registered value, provided
// it has the same type. It panics otherwise.
func EnsureMetrics(location string, m interface{}) interface{} {
	return mp.EnsureMetrics(location, m)
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.mx.Lock()
	defer s.mx.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if !sameType(existing, m) {
			panic("metrics module " + location + " already registered with a different type")
		}
		return existing
	}
	allocate(location, m, s.register)
	s.modules[location] = m
	return m
}

func (s *settings) Flush() {
	if s.exporter == nil {
		return
	}
	s.mx.Lock()
	views := append([]*view.View(nil), s.views...)
	s.mx.Unlock()

	now := time.Now()
	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		s.exporter.Flush(&view.Data{View: v, Start: now, End: now, Rows: rows})
	}
}

// Inc increments a counter
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	Int64(counter, 1, tags...)
}

// Int64 records an integer measurement
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	record(measure.M(value), tags)
}

// Float64 records a float measurement
func Float64(measure *stats.Float64Measure, value float64, tags ...map[string]string) {
	record(measure.M(value), tags)
}

// Since records the milliseconds elapsed since start
func Since(start time.Time, measure *stats.Float64Measure, tags ...map[string]string) {
	Float64(measure, milliseconds(time.Since(start)), tags...)
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func record(m stats.Measurement, extras []map[string]string) {
	mutators := make([]tag.Mutator, 0, 4)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	_ = stats.RecordWithTags(context.Background(), mutators, m)
}

// Enable equips a type with a toggle for metrics collection.
//
//	type loader struct {
//	  metrics.Enable
//	  m *loaderMetrics
//	}
//
//	if l.MetricsEnabled() {
//	  l.m = l.EnsureMetrics("loader", &loaderMetrics{}).(*loaderMetrics)
//	}
type Enable struct {
	metricsEnabled bool
}

// MetricsEnabled tells whether metrics are enabled or not
func (e Enable) MetricsEnabled() bool {
	return e.metricsEnabled
}

// EnableMetrics toggles metrics collection
func (e *Enable) EnableMetrics(enabled bool) {
	e.metricsEnabled = enabled
}

// EnsureMetrics registers a metrics module, see the package level EnsureMetrics
func (e *Enable) EnsureMetrics(name string, m interface{}) interface{} {
	return EnsureMetrics(name, m)
}

// simpleFlusher lets Flush export views while the background exporter runs
type simpleFlusher struct {
	e  view.Exporter
	mx sync.RWMutex
}

func flusher(e view.Exporter) *simpleFlusher {
	return &simpleFlusher{e: e}
}

func (f *simpleFlusher) ExportView(viewData *view.Data) {
	f.mx.RLock()
	defer f.mx.RUnlock()
	f.e.ExportView(viewData)
}

func (f *simpleFlusher) Flush(viewData *view.Data) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.e.ExportView(viewData)
}
