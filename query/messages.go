// Package query exposes read side lookups over the delivery ledger and
// the stored credential as dispatchable query messages.
package query

import (
	"strings"
)

const (
	TypeDeliveryStatus  = "watchrelay.query.delivery.status"
	TypeCredentialState = "watchrelay.query.credential.state"
)

// DeliveryStatusMessage asks whether an event has already been notified.
type DeliveryStatusMessage struct {
	EventID string
}

func (DeliveryStatusMessage) Type() string { return TypeDeliveryStatus }

func (m DeliveryStatusMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "is required")
	}
	return nil
}

// CredentialStateMessage asks for the expiry flags of the stored
// credential.
type CredentialStateMessage struct{}

func (CredentialStateMessage) Type() string { return TypeCredentialState }
