package machine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalEvent(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "nonpadding_sent", want: EventNonPaddingSent, ok: true},
		{in: "NonpaddingSent", want: EventNonPaddingSent, ok: true},
		{in: "PADDING_RECEIVED", want: EventPaddingReceived, ok: true},
		{in: "LengthCount", want: EventLengthCount, ok: true},
		{in: "timeout", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := canonicalEvent(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachines_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Machines)
		wantErr string
	}{
		{name: "valid", mutate: func(m *Machines) {}},
		{name: "no machines", mutate: func(m *Machines) { m.Client, m.Relay = nil, nil }, wantErr: "no machine"},
		{name: "missing name", mutate: func(m *Machines) { m.Client.Name = "" }, wantErr: "name is required"},
		{name: "wrong side", mutate: func(m *Machines) { m.Relay.Side = "client" }, wantErr: "declared side"},
		{name: "negative min hops", mutate: func(m *Machines) { m.Client.MinHops = -1 }, wantErr: "min_hops"},
		{name: "no states", mutate: func(m *Machines) { m.Relay.States = nil }, wantErr: "at least one state"},
		{name: "reserved state", mutate: func(m *Machines) { m.Client.States[1].Name = StateEnd }, wantErr: "reserved"},
		{name: "duplicate state", mutate: func(m *Machines) { m.Client.States[1].Name = "burst" }, wantErr: "duplicate"},
		{name: "unknown event", mutate: func(m *Machines) { m.Client.States[0].Next["timeout"] = "quiet" }, wantErr: "unknown event"},
		{name: "unknown target", mutate: func(m *Machines) { m.Client.States[0].Next[EventPaddingSent] = "nowhere" }, wantErr: "unknown state"},
		{name: "negative length", mutate: func(m *Machines) { m.Client.States[0].Length = -2 }, wantErr: "length"},
		{name: "bad iat", mutate: func(m *Machines) { m.Client.States[0].IAT.Type = "pareto" }, wantErr: "iat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := burstMachines()
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "client", m.Client.Side)
				assert.Equal(t, "relay", m.Relay.Side)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const machinesYAML = `
index: 2
client:
  name: client-burst
  min_hops: 2
  states:
    - name: burst
      iat: {type: uniform, param1: 1000, param2: 5000}
      length: 3
      next:
        length_count: end
        nonpadding_received: burst
relay:
  name: relay-echo
  states:
    - name: echo
      iat: {type: exponential, param1: 2000}
`

func TestLoadYAML_ValidFile(t *testing.T) {
	path := writeFile(t, "machines.yaml", machinesYAML)

	m, err := LoadYAML(path)

	require.NoError(t, err)
	assert.Equal(t, uint8(2), m.Index)
	assert.Equal(t, "client-burst", m.Client.Name)
	assert.Equal(t, 2, m.MinHops())
	assert.Equal(t, DistSpec{Type: DistUniform, Param1: 1000, Param2: 5000}, m.Client.States[0].IAT)
	assert.Equal(t, "end", m.Client.States[0].Next[EventLengthCount])
	assert.Equal(t, "relay", m.Relay.Side)
}

func TestLoadYAML_UnknownKey_ReturnsError(t *testing.T) {
	// GIVEN a typo in a state key
	path := writeFile(t, "machines.yaml", "client:\n  name: x\n  states:\n    - name: a\n      lenght: 3\n")

	_, err := LoadYAML(path)

	assert.Error(t, err)
}

func TestLoadYAML_InvalidMachine_ReturnsError(t *testing.T) {
	path := writeFile(t, "machines.yaml", "client:\n  name: x\n")
	_, err := LoadYAML(path)
	assert.Error(t, err)
}

const machinesLua = `
local burst = {
  name = "burst",
  iat = { type = "constant", param1 = 1000 },
  length = 2,
  next = { nonpadding_received = "wait", length_count = "end" },
}

return {
  index = 3,
  client = {
    name = "client-burst",
    min_hops = 2,
    states = {
      burst,
      { name = "wait", next = { padding_received = "burst" } },
    },
  },
}
`

func TestLoadLua_ValidScript(t *testing.T) {
	path := writeFile(t, "machines.lua", machinesLua)

	m, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, uint8(3), m.Index)
	require.NotNil(t, m.Client)
	assert.Nil(t, m.Relay)
	assert.Equal(t, "client-burst", m.Client.Name)
	assert.Equal(t, 2, m.Client.MinHops)
	require.Len(t, m.Client.States, 2)
	assert.Equal(t, DistSpec{Type: DistConstant, Param1: 1000}, m.Client.States[0].IAT)
	assert.Equal(t, 2, m.Client.States[0].Length)
	assert.Equal(t, "wait", m.Client.States[0].transitions()[EventNonPaddingReceived])
	assert.Equal(t, "end", m.Client.States[0].transitions()[EventLengthCount])
	assert.Equal(t, "burst", m.Client.States[1].transitions()[EventPaddingReceived])
	assert.True(t, m.Client.States[1].IAT.IsNone())
}

func TestLoadLua_NonTableResult_ReturnsError(t *testing.T) {
	path := writeFile(t, "machines.lua", "return 42\n")
	_, err := LoadLua(path)
	assert.Error(t, err)
}

func TestLoadLua_SyntaxError_ReturnsError(t *testing.T) {
	path := writeFile(t, "machines.lua", "return {\n")
	_, err := LoadLua(path)
	assert.Error(t, err)
}
