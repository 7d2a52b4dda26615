// Package workflow drives the multi-turn node-creation dialog: a finite
// state machine per operator session that collects host, password and ports,
// then runs provisioning and control-plane registration to completion.
package workflow

import (
	"net/netip"
	"strings"

	"github.com/relayops/node-provisioner/interfaces"
)

// EventKind classifies operator events fed into the state machine.
type EventKind int

const (
	// EventInput is a free-form text entry for the current field.
	EventInput EventKind = iota

	// EventCancel aborts the dialog. Accepted in every collecting state,
	// not during execution.
	EventCancel

	// EventDefaultPorts selects the offered default port pair.
	EventDefaultPorts
)

// Event is a single operator action.
type Event struct {
	Kind EventKind
	Text string
}

// EffectKind classifies the side effects a transition requests from its
// runtime.
type EffectKind int

const (
	// EffectPrompt asks the operator for the next field.
	EffectPrompt EffectKind = iota

	// EffectReject reports invalid input; the state is unchanged and the
	// field is re-prompted.
	EffectReject

	// EffectProbeSSH requests the advisory TCP reachability check of the
	// accepted host. Failure warns but never blocks progression.
	EffectProbeSSH

	// EffectProvision starts the provisioning run with the collected data.
	EffectProvision

	// EffectCancelled clears the session at the operator's request.
	EffectCancelled
)

// Effect is a side effect requested by a transition.
type Effect struct {
	Kind    EffectKind
	Message string
	Host    string
}

// Data is the state collected over a dialog. The password lives only here,
// in memory, until the session ends.
type Data struct {
	Host     string
	Password string
	Ports    interfaces.PortPair
}

// Operator-facing dialog strings.
const (
	promptHost     = "Enter the server IP address (e.g. 203.0.113.5)."
	promptPassword = "Enter the server password. It is used only for setup and never stored."
	promptPorts    = "Select node ports: reply 'default' for 8443:8880 or enter service_port:api_port."
	msgUnreachable = "Warning: SSH port 22 is not reachable. Make sure the server is running and accessible."
	msgCancelled   = "Node creation cancelled."
	msgInProgress  = "Node setup is in progress, please wait."
)

// Transition is the pure state machine step: given the current state, the
// data collected so far, and an operator event, it yields the next state,
// the updated data, and the effects the runtime must perform. It has no side
// effects of its own.
func Transition(state interfaces.WorkflowState, data Data, ev Event) (interfaces.WorkflowState, Data, []Effect) {
	if ev.Kind == EventCancel {
		switch state {
		case interfaces.StateCollectingHost, interfaces.StateCollectingPassword, interfaces.StateCollectingPorts:
			return interfaces.StateDone, Data{}, []Effect{{Kind: EffectCancelled, Message: msgCancelled}}
		default:
			// Mid-execution cancellation is not honored: the remote script
			// cannot be stopped once started.
			return state, data, []Effect{{Kind: EffectReject, Message: msgInProgress}}
		}
	}

	switch state {
	case interfaces.StateCollectingHost:
		host := strings.TrimSpace(ev.Text)
		if err := ValidateHost(host); err != nil {
			return state, data, []Effect{{Kind: EffectReject, Message: err.Error() + " Please try again."}}
		}
		data.Host = host
		return interfaces.StateCollectingPassword, data, []Effect{
			{Kind: EffectProbeSSH, Host: host},
			{Kind: EffectPrompt, Message: promptPassword},
		}

	case interfaces.StateCollectingPassword:
		password := strings.TrimSpace(ev.Text)
		if password == "" {
			return state, data, []Effect{{Kind: EffectReject, Message: "Password cannot be empty. Please try again."}}
		}
		data.Password = password
		return interfaces.StateCollectingPorts, data, []Effect{
			{Kind: EffectPrompt, Message: promptPorts},
		}

	case interfaces.StateCollectingPorts:
		ports, err := selectPorts(ev)
		if err != nil {
			return state, data, []Effect{{Kind: EffectReject, Message: err.Error() + ". Example: 8443:8880"}}
		}
		data.Ports = ports
		return interfaces.StateExecuting, data, []Effect{{Kind: EffectProvision}}

	case interfaces.StateExecuting:
		return state, data, []Effect{{Kind: EffectReject, Message: msgInProgress}}

	default:
		return state, data, nil
	}
}

func selectPorts(ev Event) (interfaces.PortPair, error) {
	if ev.Kind == EventDefaultPorts {
		return interfaces.DefaultPortPair, nil
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" || strings.EqualFold(text, "default") {
		return interfaces.DefaultPortPair, nil
	}
	return interfaces.ParsePortPair(text)
}

// ValidateHost accepts any parseable IPv4 or IPv6 address except loopback
// and unspecified ones: the target must be a distinct remote host.
func ValidateHost(host string) error {
	if strings.EqualFold(host, "localhost") {
		return &interfaces.ValidationError{Field: "host", Reason: "cannot use localhost, enter the external address of the server"}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return &interfaces.ValidationError{Field: "host", Reason: "not a valid IP address"}
	}

	if addr.IsLoopback() || addr.IsUnspecified() {
		return &interfaces.ValidationError{Field: "host", Reason: "cannot use localhost, enter the external address of the server"}
	}

	return nil
}
