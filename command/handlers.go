package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/watchrelay/watchrelay/core"
	"github.com/watchrelay/watchrelay/relay"
)

type RelayService interface {
	RunCycle(ctx context.Context) (relay.CycleResult, error)
	PurgeLedger(ctx context.Context, horizon time.Duration) (int, error)
}

type CredentialService interface {
	Refresh(ctx context.Context) (core.Credential, error)
}

type RunCycleCommand struct {
	service RelayService
}

func NewRunCycleCommand(service RelayService) *RunCycleCommand {
	return &RunCycleCommand{service: service}
}

func (c *RunCycleCommand) Execute(ctx context.Context, msg RunCycleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: relay service is required")
	}
	out, err := c.service.RunCycle(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCredentialCommand struct {
	service CredentialService
}

func NewRefreshCredentialCommand(service CredentialService) *RefreshCredentialCommand {
	return &RefreshCredentialCommand{service: service}
}

func (c *RefreshCredentialCommand) Execute(ctx context.Context, msg RefreshCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	out, err := c.service.Refresh(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeLedgerCommand struct {
	service RelayService
}

func NewPurgeLedgerCommand(service RelayService) *PurgeLedgerCommand {
	return &PurgeLedgerCommand{service: service}
}

func (c *PurgeLedgerCommand) Execute(ctx context.Context, msg PurgeLedgerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: relay service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.PurgeLedger(ctx, msg.Horizon)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
