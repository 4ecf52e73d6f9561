package watchrelay

import (
	"fmt"

	relaycommand "github.com/watchrelay/watchrelay/command"
	relayquery "github.com/watchrelay/watchrelay/query"
)

// CommandService is the mutating surface the facade binds commands to.
type CommandService interface {
	relaycommand.RelayService
}

type Commands struct {
	RunCycle          *relaycommand.RunCycleCommand
	RefreshCredential *relaycommand.RefreshCredentialCommand
	PurgeLedger       *relaycommand.PurgeLedgerCommand
}

type Queries struct {
	DeliveryStatus  *relayquery.DeliveryStatusQuery
	CredentialState *relayquery.CredentialStateQuery
}

// Facade bundles the command and query handlers for callers that embed
// the relay instead of running the daemon binary.
type Facade struct {
	service  CommandService
	commands Commands
	queries  Queries
}

func NewFacade(
	service CommandService,
	credentials relaycommand.CredentialService,
	ledger relayquery.DeliveryReader,
	tokens relayquery.CredentialReader,
) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("watchrelay: relay service is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("watchrelay: credential service is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("watchrelay: delivery reader is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("watchrelay: credential reader is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RunCycle:          relaycommand.NewRunCycleCommand(service),
		RefreshCredential: relaycommand.NewRefreshCredentialCommand(credentials),
		PurgeLedger:       relaycommand.NewPurgeLedgerCommand(service),
	}
	facade.queries = Queries{
		DeliveryStatus:  relayquery.NewDeliveryStatusQuery(ledger),
		CredentialState: relayquery.NewCredentialStateQuery(tokens),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandService {
	if f == nil {
		return nil
	}
	return f.service
}
