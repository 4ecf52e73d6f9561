// Package command exposes the relay operations as dispatchable command
// messages.
package command

import (
	"time"
)

const (
	TypeRunCycle          = "watchrelay.command.cycle.run"
	TypeRefreshCredential = "watchrelay.command.credential.refresh"
	TypePurgeLedger       = "watchrelay.command.ledger.purge"
)

// RunCycleMessage triggers one fetch/dedup/notify pass.
type RunCycleMessage struct{}

func (RunCycleMessage) Type() string { return TypeRunCycle }

// RefreshCredentialMessage forces a token refresh regardless of remaining
// lifetime.
type RefreshCredentialMessage struct{}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

// PurgeLedgerMessage trims delivery records. A zero Horizon uses the
// configured retention.
type PurgeLedgerMessage struct {
	Horizon time.Duration
}

func (PurgeLedgerMessage) Type() string { return TypePurgeLedger }

func (m PurgeLedgerMessage) Validate() error {
	if m.Horizon < 0 {
		return commandValidationError("horizon", "must not be negative")
	}
	return nil
}
