package sink

import (
	"log/slog"
	"time"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
)

// Option configures a sink.
type Option func(*options)

type options struct {
	pub     events.Publisher
	metrics *observe.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// WithPublisher sets where [events.SinkDone] events go. Defaults to
// [events.Discard].
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.pub = p
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source used to name recordings that have no
// start time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		pub: events.Discard,
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}
