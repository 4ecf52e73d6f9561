package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// HistorySource fetches candidate events for a bounded time window using the
// caller-supplied access token. Implementations classify failures through the
// package error taxonomy: CategoryAuth for rejected credentials,
// CategoryExternal for transient transport or 5xx failures, and
// CategoryOperation for responses that cannot be decoded.
type HistorySource interface {
	Fetch(ctx context.Context, since time.Time, limit int, accessToken string) ([]Event, error)
}

// TokenRefresher exchanges the current refresh token for a new
// access/refresh pair at the source's token endpoint.
type TokenRefresher interface {
	Exchange(ctx context.Context, refreshToken string) (Credential, error)
}

// MetadataEnricher is a best-effort lookup. It never returns an error:
// internal failures degrade to a nil result and the bare composition path.
type MetadataEnricher interface {
	Lookup(ctx context.Context, event Event) *Metadata
}

// Composer maps an (event, metadata) pair to a delivery payload. A nil
// metadata selects the no-metadata composition path.
type Composer interface {
	Compose(event Event, meta *Metadata) (Payload, error)
}

// NotificationSink delivers a composed payload to the external endpoint.
type NotificationSink interface {
	Send(ctx context.Context, payload Payload) error
}

// TokenStore persists the singleton credential. Get returns
// ErrCredentialNotFound when nothing has been stored yet; Upsert replaces the
// whole record atomically so a partial access/refresh update is never
// observable.
type TokenStore interface {
	Get(ctx context.Context) (Credential, error)
	Upsert(ctx context.Context, cred Credential) error
}

// DeliveryLedger persists the set of delivered event ids with bounded
// retention. MarkDelivered is idempotent: marking an already-present id
// succeeds without creating a second record.
type DeliveryLedger interface {
	IsDelivered(ctx context.Context, eventID string) (bool, error)
	MarkDelivered(ctx context.Context, eventID string) error
	PurgeOlderThan(ctx context.Context, horizon time.Duration) (int, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}
