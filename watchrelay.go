package watchrelay

import (
	"github.com/watchrelay/watchrelay/core"
	"github.com/watchrelay/watchrelay/relay"
)

type Config = core.Config

type Event = core.Event

type Credential = core.Credential

type Metadata = core.Metadata

type Payload = core.Payload

type CycleResult = relay.CycleResult

type HistorySource = core.HistorySource
type TokenRefresher = core.TokenRefresher
type MetadataEnricher = core.MetadataEnricher
type Composer = core.Composer
type NotificationSink = core.NotificationSink
type TokenStore = core.TokenStore
type DeliveryLedger = core.DeliveryLedger

func DefaultConfig() Config {
	return core.DefaultConfig()
}
