package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_AdvanceBy_NegativeDeltaPanics(t *testing.T) {
	var c Clock
	c.AdvanceBy(10)
	c.AdvanceBy(0)
	assert.Equal(t, int64(10), c.Now())
	assert.PanicsWithValue(t, "Clock went backwards: delta -1 at 10", func() { c.AdvanceBy(-1) })
}

func TestSequencer_StrictlyIncreasing(t *testing.T) {
	var s Sequencer
	assert.Equal(t, uint64(0), s.Next())
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
}

func TestSimulationContext_Defaults(t *testing.T) {
	ctx := NewSimulationContext(NewSimulationKey(1))

	assert.Equal(t, 0, ctx.Input(SideClient).Len())
	assert.Equal(t, 0, ctx.Outputs().Len(SideRelay))
	assert.Equal(t, ClientCircuitID, ctx.Circuit(SideClient).ID)
	assert.Equal(t, "or", ctx.Circuit(SideRelay).Purpose)
	assert.True(t, ctx.Circuit(SideClient).RelayEarly)

	ctx.SetInput(SideRelay, nil)
	assert.NotNil(t, ctx.Input(SideRelay))
}

func TestSide_CircuitIDMapping(t *testing.T) {
	assert.Equal(t, SideRelay, SideFromCircuitID(SideRelay.CircuitID()))
	assert.Equal(t, SideClient, SideFromCircuitID(SideClient.CircuitID()))
	assert.Equal(t, SideClient, SideFromCircuitID(17))
	assert.Equal(t, SideRelay, SideClient.Other())
	assert.Equal(t, "relay", SideRelay.String())
}

func TestCell_CommandAndClone(t *testing.T) {
	c := NewCell(RelayCommandPaddingNegotiate, 4)
	assert.Equal(t, RelayCommandPaddingNegotiate, c.Command())
	assert.Equal(t, byte(0), Cell{}.Command())

	clone := c.Clone()
	clone.Payload[1] = 9
	assert.Equal(t, byte(4), c.Payload[1])
}
