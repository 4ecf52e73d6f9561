package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/watchrelay/watchrelay/core"
)

var (
	_ gocmd.Querier[DeliveryStatusMessage, bool]             = (*DeliveryStatusQuery)(nil)
	_ gocmd.Querier[CredentialStateMessage, core.TokenState] = (*CredentialStateQuery)(nil)
	_ DeliveryReader                                         = (core.DeliveryLedger)(nil)
	_ CredentialReader                                       = (core.TokenStore)(nil)
)
