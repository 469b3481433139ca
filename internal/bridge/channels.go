package bridge

import (
	"encoding/json"

	"github.com/kisshan13/evstream/internal/hub"
)

// BindChannels wires a bridge to a broadcaster: local broadcasts relay out
// through the bridge, and envelopes from sibling processes fan out locally
// without being relayed again.
func BindChannels(b *Bridge, bc *hub.Broadcaster) {
	bc.SetRelay(b)
	b.OnMessage(func(raw json.RawMessage) {
		var env hub.RelayEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Channel == "" {
			return
		}
		bc.Send(env.Channel, env.Message)
	})
}
