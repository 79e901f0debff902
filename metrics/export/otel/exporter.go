package otel

import (
	"context"
	"errors"
	"fmt"
	"math"

	userauth "github.com/MrEthical07/goUserAuth"
	"github.com/MrEthical07/goUserAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() userauth.MetricsSnapshot
	AuditDropped() uint64
}

// flowCounter is one engine counter, observed with its flow attribute.
type flowCounter struct {
	id         userauth.MetricID
	instrument metric.Int64ObservableCounter
	flow       metric.MeasurementOption
}

// latencyGauges publishes a fixed-bucket histogram as a cumulative bucket
// gauge keyed by "le" plus a sample count.
type latencyGauges struct {
	id      userauth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  []metric.MeasurementOption
}

// Exporter feeds the engine's counters and validate-latency buckets to an
// OpenTelemetry meter. Values are read from the engine on each collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []flowCounter
	latency      []latencyGauges
	auditDropped flowCounter
}

// New registers the engine's instruments on meter.
func New(meter metric.Meter, engine *userauth.Engine) (*Exporter, error) {
	return NewFromSource(meter, engine)
}

// NewFromSource registers instruments fed by any snapshot source.
func NewFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := newFlowCounter(meter, def)
		if err != nil {
			return nil, err
		}
		e.counters = append(e.counters, c)
		observables = append(observables, c.instrument)
	}

	dropped, err := newFlowCounter(meter, internaldefs.AuditDropped)
	if err != nil {
		return nil, err
	}
	e.auditDropped = dropped
	observables = append(observables, dropped.instrument)

	for _, def := range internaldefs.HistogramDefs {
		g, err := newLatencyGauges(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, g)
		observables = append(observables, g.buckets, g.count)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register userauth callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func newFlowCounter(meter metric.Meter, def internaldefs.CounterDef) (flowCounter, error) {
	ins, err := meter.Int64ObservableCounter(def.Name,
		metric.WithDescription(def.Help),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return flowCounter{}, fmt.Errorf("counter %s: %w", def.Name, err)
	}
	return flowCounter{
		id:         def.ID,
		instrument: ins,
		flow:       metric.WithAttributeSet(attribute.NewSet(attribute.String("flow", def.Flow))),
	}, nil
}

func newLatencyGauges(meter metric.Meter, def internaldefs.HistogramDef) (latencyGauges, error) {
	buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return latencyGauges{}, fmt.Errorf("bucket gauge %s: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Total samples."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return latencyGauges{}, fmt.Errorf("count gauge %s: %w", def.Name, err)
	}

	bounds := make([]metric.MeasurementOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return latencyGauges{id: def.ID, buckets: buckets, count: count, bounds: bounds}, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, saturate(snapshot.Counters[c.id]), c.flow)
	}
	o.ObserveInt64(e.auditDropped.instrument, saturate(e.source.AuditDropped()), e.auditDropped.flow)

	for _, g := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[g.id]))
		for i, bound := range g.bounds {
			o.ObserveInt64(g.buckets, saturate(cumulative[i]), bound)
		}
		o.ObserveInt64(g.count, saturate(cumulative[len(cumulative)-1]))
	}
	return nil
}

func saturate(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Close unregisters the callback. The meter's instruments stay registered
// with the provider.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
