package metrics

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/docker/go-units"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// declaration holds the struct tags of a measure field:
//
//   - metric: the measure name, relative to the enclosing groups
//   - group: adds a level to the metrics path of a nested struct
//   - unit: count (default), bytes, sumbytes, milliseconds or bytespersec
//   - description: describes the measure and its views
//   - extraviews: comma separated additional aggregations, among count, sum and lastvalue
//   - tags: comma separated tag keys retained by views
type declaration struct {
	name        string
	unit        string
	description string
	extraViews  []string
	tagKeys     []tag.Key
}

var (
	int64Type   = reflect.TypeOf(&stats.Int64Measure{})
	float64Type = reflect.TypeOf(&stats.Float64Measure{})
)

func sameType(a, b interface{}) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// allocate walks the struct pointed to by m, and sets every tagged measure field.
// Fields which are neither measures nor structs are ignored.
func allocate(location string, m interface{}, register func(declaration, reflect.Type) stats.Measure) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("metrics require a pointer to a struct, got: %T", m))
	}
	walk(location, rv.Elem(), register)
}

func walk(location string, rv reflect.Value, register func(declaration, reflect.Type) stats.Measure) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)
		if !field.IsExported() {
			continue
		}
		group := path.Join(location, field.Tag.Get("group"))

		switch {
		case field.Type.Kind() == reflect.Struct:
			walk(group, value, register)
		case field.Type == int64Type || field.Type == float64Type:
			metric := field.Tag.Get("metric")
			if metric == "" {
				continue
			}
			measure := register(declare(path.Join(group, metric), field.Tag), field.Type)
			value.Set(reflect.ValueOf(measure))
		}
	}
}

func declare(name string, fieldTag reflect.StructTag) declaration {
	d := declaration{
		name:        name,
		unit:        fieldTag.Get("unit"),
		description: fieldTag.Get("description"),
	}
	if d.description == "" {
		d.description = describe(name, d.unit)
	}
	for _, extra := range strings.Split(fieldTag.Get("extraviews"), ",") {
		if extra = strings.TrimSpace(extra); extra != "" {
			d.extraViews = append(d.extraViews, extra)
		}
	}
	for _, key := range strings.Split(fieldTag.Get("tags"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			d.tagKeys = append(d.tagKeys, tag.MustNewKey(key))
		}
	}
	return d
}

// register creates a measure and its views. Must be called with the lock held.
//
// The default view aggregates according to the unit: counts for counters,
// distributions for sizes, timings and throughputs.
func (s *settings) register(d declaration, kind reflect.Type) stats.Measure {
	unit, aggregation := unitAndAggregation(d.unit)

	var measure stats.Measure
	if kind == float64Type {
		measure = stats.Float64(d.name, d.description, unit)
	} else {
		measure = stats.Int64(d.name, d.description, unit)
	}

	s.addView(&view.View{
		Name:        d.name,
		Description: describeView(d.description, aggregation),
		Measure:     measure,
		Aggregation: aggregation,
		TagKeys:     d.tagKeys,
	})
	for _, extra := range d.extraViews {
		var agg *view.Aggregation
		switch extra {
		case "count":
			agg = view.Count()
		case "sum":
			agg = view.Sum()
		case "lastvalue":
			agg = view.LastValue()
		default:
			continue
		}
		s.addView(&view.View{
			Name:        describeView(d.name, agg),
			Description: describeView(d.description, agg),
			Measure:     measure,
			Aggregation: agg,
			TagKeys:     d.tagKeys,
		})
	}
	return measure
}

func (s *settings) addView(v *view.View) {
	s.views = append(s.views, v)
	_ = view.Register(v)
}

func unitAndAggregation(unit string) (string, *view.Aggregation) {
	switch unit {
	case "milliseconds":
		// 10ms to 100s
		return stats.UnitMilliseconds, view.Distribution(
			10, 50, 100, 300, 500, 700, 900,
			1000, 1500, 2000, 3000, 5000, 7000,
			10000, 30000, 50000, 100000,
		)
	case "bytes":
		return stats.UnitBytes, view.Distribution(
			500,
			units.KiB, 5*units.KiB, 10*units.KiB, 50*units.KiB, 100*units.KiB, 500*units.KiB,
			units.MiB, 5*units.MiB, 10*units.MiB, 50*units.MiB, 100*units.MiB, 500*units.MiB,
			units.GiB,
		)
	case "sumbytes":
		return stats.UnitBytes, view.Sum()
	case "bytespersec":
		return "bps", view.Distribution(
			units.KiB, 5*units.KiB, 50*units.KiB, 100*units.KiB,
			units.MiB, 10*units.MiB, 20*units.MiB, 50*units.MiB, 100*units.MiB, 150*units.MiB,
		)
	default:
		return stats.UnitDimensionless, view.Count()
	}
}

func describe(name, unit string) string {
	switch unit {
	case "", "count":
		return name + " counter"
	case "sumbytes":
		return name + " cumulated bytes"
	default:
		return name + " in " + unit
	}
}

func describeView(desc string, agg *view.Aggregation) string {
	switch agg.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	default:
		return desc
	}
}
