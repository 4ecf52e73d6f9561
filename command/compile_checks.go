package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RunCycleMessage]          = (*RunCycleCommand)(nil)
	_ gocmd.Commander[RefreshCredentialMessage] = (*RefreshCredentialCommand)(nil)
	_ gocmd.Commander[PurgeLedgerMessage]       = (*PurgeLedgerCommand)(nil)
)
