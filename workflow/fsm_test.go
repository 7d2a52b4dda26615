package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayops/node-provisioner/interfaces"
)

func TestValidateHost(t *testing.T) {
	valid := []string{
		"203.0.113.5",
		"192.168.1.100",
		"8.8.8.8",
		"2001:db8::1",
		"fe80::1",
	}
	for _, host := range valid {
		assert.NoError(t, ValidateHost(host), "host %q should be accepted", host)
	}

	invalid := []string{
		"",
		"not-an-ip",
		"256.1.1.1",
		"203.0.113.5:22",
		"example.com",
		"127.0.0.1",
		"localhost",
		"LOCALHOST",
		"::1",
		"0.0.0.0",
		"::",
	}
	for _, host := range invalid {
		assert.Error(t, ValidateHost(host), "host %q should be rejected", host)
	}
}

func TestTransitionCollectingHost(t *testing.T) {
	t.Run("valid host advances", func(t *testing.T) {
		state, data, effects := Transition(interfaces.StateCollectingHost, Data{}, Event{Kind: EventInput, Text: " 203.0.113.5 "})
		assert.Equal(t, interfaces.StateCollectingPassword, state)
		assert.Equal(t, "203.0.113.5", data.Host)

		require.Len(t, effects, 2)
		assert.Equal(t, EffectProbeSSH, effects[0].Kind)
		assert.Equal(t, "203.0.113.5", effects[0].Host)
		assert.Equal(t, EffectPrompt, effects[1].Kind)
	})

	t.Run("invalid host stays", func(t *testing.T) {
		for _, input := range []string{"garbage", "127.0.0.1", "localhost"} {
			state, data, effects := Transition(interfaces.StateCollectingHost, Data{}, Event{Kind: EventInput, Text: input})
			assert.Equal(t, interfaces.StateCollectingHost, state, "input %q", input)
			assert.Empty(t, data.Host)
			require.Len(t, effects, 1)
			assert.Equal(t, EffectReject, effects[0].Kind)
		}
	})
}

func TestTransitionCollectingPassword(t *testing.T) {
	data := Data{Host: "203.0.113.5"}

	state, next, effects := Transition(interfaces.StateCollectingPassword, data, Event{Kind: EventInput, Text: "   "})
	assert.Equal(t, interfaces.StateCollectingPassword, state)
	assert.Empty(t, next.Password)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectReject, effects[0].Kind)

	state, next, effects = Transition(interfaces.StateCollectingPassword, data, Event{Kind: EventInput, Text: "p@ss"})
	assert.Equal(t, interfaces.StateCollectingPorts, state)
	assert.Equal(t, "p@ss", next.Password)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectPrompt, effects[0].Kind)
}

func TestTransitionCollectingPorts(t *testing.T) {
	data := Data{Host: "203.0.113.5", Password: "p@ss"}

	t.Run("manual entry", func(t *testing.T) {
		state, next, effects := Transition(interfaces.StateCollectingPorts, data, Event{Kind: EventInput, Text: "8443:8880"})
		assert.Equal(t, interfaces.StateExecuting, state)
		assert.Equal(t, interfaces.PortPair{ServicePort: 8443, APIPort: 8880}, next.Ports)
		require.Len(t, effects, 1)
		assert.Equal(t, EffectProvision, effects[0].Kind)
	})

	t.Run("default selection", func(t *testing.T) {
		for _, ev := range []Event{{Kind: EventDefaultPorts}, {Kind: EventInput, Text: "default"}, {Kind: EventInput, Text: ""}} {
			state, next, _ := Transition(interfaces.StateCollectingPorts, data, ev)
			assert.Equal(t, interfaces.StateExecuting, state)
			assert.Equal(t, interfaces.DefaultPortPair, next.Ports)
		}
	})

	t.Run("malformed entry stays", func(t *testing.T) {
		for _, input := range []string{"abc:123", "8443", "1:2:3", "8443:99999", "0:8880"} {
			state, next, effects := Transition(interfaces.StateCollectingPorts, data, Event{Kind: EventInput, Text: input})
			assert.Equal(t, interfaces.StateCollectingPorts, state, "input %q", input)
			assert.Equal(t, interfaces.PortPair{}, next.Ports)
			require.Len(t, effects, 1)
			assert.Equal(t, EffectReject, effects[0].Kind, "input %q", input)
		}
	})
}

func TestTransitionCancel(t *testing.T) {
	collecting := []interfaces.WorkflowState{
		interfaces.StateCollectingHost,
		interfaces.StateCollectingPassword,
		interfaces.StateCollectingPorts,
	}
	for _, from := range collecting {
		state, data, effects := Transition(from, Data{Host: "203.0.113.5", Password: "p@ss"}, Event{Kind: EventCancel})
		assert.Equal(t, interfaces.StateDone, state, "cancel from %s", from)
		assert.Equal(t, Data{}, data, "cancel must discard collected data")
		require.Len(t, effects, 1)
		assert.Equal(t, EffectCancelled, effects[0].Kind)
	}

	// Cancellation is not honored while the remote script runs.
	state, _, effects := Transition(interfaces.StateExecuting, Data{Host: "203.0.113.5"}, Event{Kind: EventCancel})
	assert.Equal(t, interfaces.StateExecuting, state)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectReject, effects[0].Kind)
}

func TestTransitionExecutingRejectsInput(t *testing.T) {
	state, _, effects := Transition(interfaces.StateExecuting, Data{}, Event{Kind: EventInput, Text: "anything"})
	assert.Equal(t, interfaces.StateExecuting, state)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectReject, effects[0].Kind)
}

func TestParsePortPair(t *testing.T) {
	pair, err := interfaces.ParsePortPair("8443:8880")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PortPair{ServicePort: 8443, APIPort: 8880}, pair)

	pair, err = interfaces.ParsePortPair(" 9443 : 9880 ")
	require.NoError(t, err)
	assert.Equal(t, interfaces.PortPair{ServicePort: 9443, APIPort: 9880}, pair)

	for _, input := range []string{"abc:123", "8443", "", ":", "8443:", "65536:80"} {
		_, err := interfaces.ParsePortPair(input)
		var validationErr *interfaces.ValidationError
		require.ErrorAs(t, err, &validationErr, "input %q", input)
	}
}
