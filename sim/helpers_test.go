package sim

import (
	"fmt"
	"strings"
)

type entry struct {
	ts   int64
	kind EventKind
}

// fill pushes entries onto side's input, drawing sequence numbers from ctx.
func fill(ctx *SimulationContext, side Side, entries ...entry) {
	for _, e := range entries {
		ctx.Input(side).Push(NewEvent(e.kind, e.ts, ctx.Sequencer.Next()))
	}
}

// handshakeClient is a three-hop circuit build with one round trip per
// extension: the first takes 100ns, so the estimated latency is 50ns.
var handshakeClient = []entry{
	{0, KindHopAdded},
	{50, KindNonPaddingSent},
	{150, KindNonPaddingReceived},
	{151, KindHopAdded},
	{160, KindNonPaddingSent},
	{260, KindNonPaddingReceived},
	{261, KindHopAdded},
}

// handshakeRelay mirrors handshakeClient from the relay's point of view.
var handshakeRelay = []entry{
	{100, KindNonPaddingReceived},
	{100, KindNonPaddingSent},
	{210, KindNonPaddingReceived},
	{210, KindNonPaddingSent},
}

func handshakeContext(seed int64) *SimulationContext {
	ctx := NewSimulationContext(NewSimulationKey(seed))
	fill(ctx, SideClient, handshakeClient...)
	fill(ctx, SideRelay, handshakeRelay...)
	return ctx
}

// render formats side's output the way trace export does.
func render(ctx *SimulationContext, side Side) string {
	var b strings.Builder
	for _, e := range ctx.Outputs().Output(side) {
		fmt.Fprintf(&b, "%016d %s\n", e.Timestamp, e.Label)
	}
	return b.String()
}
