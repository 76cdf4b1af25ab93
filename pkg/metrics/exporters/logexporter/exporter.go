// Package logexporter exports opencensus views as structured log entries.
package logexporter

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

// NewExporter builds an opencensus exporter which logs view data.
//
// With a nil logger, data is logged by a development logger.
func NewExporter(l *zap.Logger) *Exporter {
	if l == nil {
		l, _ = zap.NewDevelopment()
	}
	return &Exporter{
		l: l,
	}
}

var _ view.Exporter = &Exporter{}

// Exporter logs opencensus view data
type Exporter struct {
	l *zap.Logger
}

// ExportView logs the rows of a view
func (e *Exporter) ExportView(viewData *view.Data) {
	if viewData == nil || viewData.View == nil {
		return
	}
	for _, row := range viewData.Rows {
		fields := make([]zap.Field, 0, len(row.Tags)+2)
		fields = append(fields,
			zap.String("view", viewData.View.Name),
			zap.Any("data", row.Data),
		)
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		e.l.Info("metric", fields...)
	}
}
