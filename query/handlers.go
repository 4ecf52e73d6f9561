package query

import (
	"context"
	"time"

	"github.com/watchrelay/watchrelay/core"
)

type DeliveryReader interface {
	IsDelivered(ctx context.Context, eventID string) (bool, error)
}

type CredentialReader interface {
	Get(ctx context.Context) (core.Credential, error)
}

type DeliveryStatusQuery struct {
	reader DeliveryReader
}

func NewDeliveryStatusQuery(reader DeliveryReader) *DeliveryStatusQuery {
	return &DeliveryStatusQuery{reader: reader}
}

func (q *DeliveryStatusQuery) Query(ctx context.Context, msg DeliveryStatusMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: delivery reader is required")
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	return q.reader.IsDelivered(ctx, msg.EventID)
}

type CredentialStateQuery struct {
	reader CredentialReader
	now    func() time.Time
}

func NewCredentialStateQuery(reader CredentialReader) *CredentialStateQuery {
	return &CredentialStateQuery{
		reader: reader,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (q *CredentialStateQuery) Query(ctx context.Context, msg CredentialStateMessage) (core.TokenState, error) {
	if q == nil || q.reader == nil {
		return core.TokenState{}, queryDependencyError("query: credential reader is required")
	}
	credential, err := q.reader.Get(ctx)
	if err != nil {
		return core.TokenState{}, err
	}
	return core.ResolveTokenState(q.now(), credential), nil
}
