package sim

import (
	"github.com/lab1702/defcon-server/internal/protocol"
)

// Command is one validated client instruction queued for the next tick,
// grounded on the source's single-writer command-drain model: every
// command is posted to its target session's queue and drained at the
// start of the next tick, never applied mid-tick.
type Command struct {
	PlayerID string
	Type     string
	Data     []byte
}

// Outbound is one addressed server frame produced by a tick, handed to
// whatever transport owns the recipient connection (internal/netconn).
type Outbound struct {
	PlayerID string
	Message  protocol.ServerMessage
}
