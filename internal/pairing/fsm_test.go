package pairing_test

import (
	"slices"
	"testing"

	"github.com/carlinkd/cartrustd/internal/pairing"
)

func TestApplyEventBackbone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       pairing.State
		event       pairing.Event
		wantState   pairing.State
		wantChanged bool
		wantActions []pairing.Action
	}{
		{
			name:        "Idle+Start->Discovering",
			state:       pairing.StateIdle,
			event:       pairing.EventStart,
			wantState:   pairing.StateDiscovering,
			wantChanged: true,
		},
		{
			name:        "Discovering+Advance->TransportConnecting",
			state:       pairing.StateDiscovering,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateTransportConnecting,
			wantChanged: true,
		},
		{
			name:        "TransportConnecting+Advance->MTUNegotiating",
			state:       pairing.StateTransportConnecting,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateMTUNegotiating,
			wantChanged: true,
		},
		{
			name:        "TransportConnecting+BondingObserved->BondingWait",
			state:       pairing.StateTransportConnecting,
			event:       pairing.EventBondingObserved,
			wantState:   pairing.StateBondingWait,
			wantChanged: true,
		},
		{
			name:        "BondingWait+BondingResolved->TransportConnecting restarts connect",
			state:       pairing.StateBondingWait,
			event:       pairing.EventBondingResolved,
			wantState:   pairing.StateTransportConnecting,
			wantChanged: true,
			wantActions: []pairing.Action{pairing.ActionRestartConnect},
		},
		{
			name:        "MTUNegotiating+Advance->ServicesDiscovering",
			state:       pairing.StateMTUNegotiating,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateServicesDiscovering,
			wantChanged: true,
		},
		{
			name:        "ServicesDiscovering+Advance->NotifyEnabling",
			state:       pairing.StateServicesDiscovering,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateNotifyEnabling,
			wantChanged: true,
		},
		{
			name:        "NotifyEnabling+Advance->VersionExchanging (no peer-name support)",
			state:       pairing.StateNotifyEnabling,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateVersionExchanging,
			wantChanged: true,
		},
		{
			name:        "NotifyEnabling+PeerNameAvailable->PeerNameReading",
			state:       pairing.StateNotifyEnabling,
			event:       pairing.EventPeerNameAvailable,
			wantState:   pairing.StatePeerNameReading,
			wantChanged: true,
		},
		{
			name:        "PeerNameReading+Advance->VersionExchanging",
			state:       pairing.StatePeerNameReading,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateVersionExchanging,
			wantChanged: true,
		},
		{
			name:        "VersionExchanging+Advance->CapsExchanging",
			state:       pairing.StateVersionExchanging,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateCapsExchanging,
			wantChanged: true,
		},
		{
			name:        "CapsExchanging+Advance->HandshakeInit",
			state:       pairing.StateCapsExchanging,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateHandshakeInit,
			wantChanged: true,
		},
		{
			name:        "HandshakeInit+Advance->HandshakeCont",
			state:       pairing.StateHandshakeInit,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateHandshakeCont,
			wantChanged: true,
		},
		{
			name:        "HandshakeCont+Advance->Verifying",
			state:       pairing.StateHandshakeCont,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateVerifying,
			wantChanged: true,
		},
		{
			name:        "Verifying+Advance->KeyConfirmed",
			state:       pairing.StateVerifying,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateKeyConfirmed,
			wantChanged: true,
		},
		{
			name:        "KeyConfirmed+Advance->DeviceIDExchange",
			state:       pairing.StateKeyConfirmed,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateDeviceIDExchange,
			wantChanged: true,
		},
		{
			name:        "DeviceIDExchange+Advance->Ready notifies ready",
			state:       pairing.StateDeviceIDExchange,
			event:       pairing.EventAdvance,
			wantState:   pairing.StateReady,
			wantChanged: true,
			wantActions: []pairing.Action{pairing.ActionNotifyReady},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := pairing.ApplyEvent(tt.state, tt.event)
			if got.NewState != tt.wantState {
				t.Errorf("NewState = %v, want %v", got.NewState, tt.wantState)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
			if !slices.Equal(got.Actions, tt.wantActions) {
				t.Errorf("Actions = %v, want %v", got.Actions, tt.wantActions)
			}
		})
	}
}

func TestApplyEventFailAndDisconnectFromAnyNonTerminalState(t *testing.T) {
	t.Parallel()

	nonTerminal := []pairing.State{
		pairing.StateIdle,
		pairing.StateDiscovering,
		pairing.StateTransportConnecting,
		pairing.StateBondingWait,
		pairing.StateMTUNegotiating,
		pairing.StateServicesDiscovering,
		pairing.StateNotifyEnabling,
		pairing.StatePeerNameReading,
		pairing.StateVersionExchanging,
		pairing.StateCapsExchanging,
		pairing.StateHandshakeInit,
		pairing.StateHandshakeCont,
		pairing.StateVerifying,
		pairing.StateKeyConfirmed,
		pairing.StateDeviceIDExchange,
	}

	for _, s := range nonTerminal {
		t.Run(s.String()+"+Fail->Failed", func(t *testing.T) {
			t.Parallel()
			got := pairing.ApplyEvent(s, pairing.EventFail)
			if got.NewState != pairing.StateFailed {
				t.Errorf("NewState = %v, want Failed", got.NewState)
			}
			want := []pairing.Action{pairing.ActionCleanupTransport, pairing.ActionNotifyFailed}
			if !slices.Equal(got.Actions, want) {
				t.Errorf("Actions = %v, want %v", got.Actions, want)
			}
		})

		t.Run(s.String()+"+Disconnect->Disconnected", func(t *testing.T) {
			t.Parallel()
			got := pairing.ApplyEvent(s, pairing.EventDisconnect)
			if got.NewState != pairing.StateDisconnected {
				t.Errorf("NewState = %v, want Disconnected", got.NewState)
			}
			want := []pairing.Action{pairing.ActionCleanupTransport, pairing.ActionNotifyDisconnected}
			if !slices.Equal(got.Actions, want) {
				t.Errorf("Actions = %v, want %v", got.Actions, want)
			}
		})
	}
}

func TestApplyEventTerminalStatesIgnoreEvents(t *testing.T) {
	t.Parallel()

	terminal := []pairing.State{pairing.StateReady, pairing.StateFailed, pairing.StateDisconnected}
	events := []pairing.Event{pairing.EventStart, pairing.EventAdvance, pairing.EventFail, pairing.EventDisconnect}

	for _, s := range terminal {
		for _, e := range events {
			got := pairing.ApplyEvent(s, e)
			if got.NewState != s {
				t.Errorf("state %v + event %v: NewState = %v, want unchanged %v", s, e, got.NewState, s)
			}
			if got.Changed {
				t.Errorf("state %v + event %v: Changed = true, want false", s, e)
			}
			if got.Actions != nil {
				t.Errorf("state %v + event %v: Actions = %v, want nil", s, e, got.Actions)
			}
		}
	}
}

func TestApplyEventUnknownTransitionIsNoop(t *testing.T) {
	t.Parallel()

	got := pairing.ApplyEvent(pairing.StateIdle, pairing.EventAdvance)
	if got.NewState != pairing.StateIdle {
		t.Errorf("NewState = %v, want Idle (no transition defined)", got.NewState)
	}
	if got.Changed {
		t.Error("Changed = true, want false for undefined transition")
	}
}
