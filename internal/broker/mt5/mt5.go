// Package mt5 adapts the MetaTrader terminal to the interfaces.Broker
// surface. In LIVE mode calls go to the terminal's HTTP bridge; DRY_RUN
// runs an in-process simulated terminal with the same semantics. Both
// serialize every call through one mutex: the terminal session is a
// single exclusive resource per process.
package mt5

import (
	"time"

	"scalping-bot/internal/interfaces"
)

type Params struct {
	Mode      string // DRY_RUN or LIVE
	BridgeURL string
	Timeout   time.Duration
}

func New(p Params) interfaces.Broker {
	if p.Mode == "LIVE" {
		return newBridgeClient(p)
	}
	return NewSimulator()
}
