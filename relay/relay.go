// Package relay drives the poll/dedup/notify cycle: fetch watch history,
// drop already-delivered events, enrich, compose, and post the remainder in
// watch order.
package relay

import (
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/watchrelay/watchrelay/core"
)

const (
	defaultPollInterval = time.Hour
	defaultLookback     = 24 * time.Hour
	defaultHistoryLimit = 50
	defaultItemDelay    = 500 * time.Millisecond
	defaultRetention    = 30 * 24 * time.Hour
)

type Relay struct {
	source    core.HistorySource
	lifecycle *core.Lifecycle
	ledger    core.DeliveryLedger
	enricher  core.MetadataEnricher
	composer  core.Composer
	sink      core.NotificationSink

	logger      core.Logger
	metrics     core.MetricsRecorder
	errorMapper core.ErrorMapper
	now         func() time.Time

	pollInterval time.Duration
	lookback     time.Duration
	historyLimit int
	itemDelay    time.Duration
	retention    time.Duration
}

type Option func(*Relay)

// WithEnricher installs the optional metadata lookup. Without it every
// notification uses the bare composition path.
func WithEnricher(enricher core.MetadataEnricher) Option {
	return func(r *Relay) {
		r.enricher = enricher
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(r *Relay) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithErrorMapper replaces the classifier applied to cycle-level failures.
func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(r *Relay) {
		if mapper != nil {
			r.errorMapper = mapper
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

func WithLookback(lookback time.Duration) Option {
	return func(r *Relay) {
		if lookback > 0 {
			r.lookback = lookback
		}
	}
}

func WithHistoryLimit(limit int) Option {
	return func(r *Relay) {
		if limit > 0 {
			r.historyLimit = limit
		}
	}
}

// WithItemDelay sets the pause between consecutive posts inside one cycle.
// Zero disables the pause.
func WithItemDelay(delay time.Duration) Option {
	return func(r *Relay) {
		if delay >= 0 {
			r.itemDelay = delay
		}
	}
}

func WithRetention(retention time.Duration) Option {
	return func(r *Relay) {
		if retention > 0 {
			r.retention = retention
		}
	}
}

func New(
	source core.HistorySource,
	lifecycle *core.Lifecycle,
	ledger core.DeliveryLedger,
	composer core.Composer,
	sink core.NotificationSink,
	options ...Option,
) (*Relay, error) {
	if source == nil {
		return nil, fmt.Errorf("relay: history source is required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("relay: credential lifecycle is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("relay: delivery ledger is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("relay: composer is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("relay: notification sink is required")
	}

	relay := &Relay{
		source:    source,
		lifecycle: lifecycle,
		ledger:    ledger,
		composer:  composer,
		sink:      sink,

		logger:      glog.Nop(),
		metrics:     core.NopMetricsRecorder{},
		errorMapper: core.DefaultErrorMapper,
		now:         time.Now,

		pollInterval: defaultPollInterval,
		lookback:     defaultLookback,
		historyLimit: defaultHistoryLimit,
		itemDelay:    defaultItemDelay,
		retention:    defaultRetention,
	}
	for _, option := range options {
		if option != nil {
			option(relay)
		}
	}
	return relay, nil
}
