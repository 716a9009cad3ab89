package pairing

// State is a pairing-session state. The linear backbone runs
// Idle -> Discovering -> TransportConnecting -> [BondingWait] ->
// MTUNegotiating -> ServicesDiscovering -> NotifyEnabling ->
// [PeerNameReading] -> VersionExchanging -> CapsExchanging ->
// HandshakeInit -> HandshakeCont -> Verifying -> KeyConfirmed ->
// DeviceIDExchange -> Ready, with Failed and Disconnected reachable as
// terminal states from any non-terminal state.
type State uint8

const (
	StateIdle State = iota
	StateDiscovering
	StateTransportConnecting
	StateBondingWait
	StateMTUNegotiating
	StateServicesDiscovering
	StateNotifyEnabling
	StatePeerNameReading
	StateVersionExchanging
	StateCapsExchanging
	StateHandshakeInit
	StateHandshakeCont
	StateVerifying
	StateKeyConfirmed
	StateDeviceIDExchange
	StateReady
	StateFailed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscovering:
		return "Discovering"
	case StateTransportConnecting:
		return "TransportConnecting"
	case StateBondingWait:
		return "BondingWait"
	case StateMTUNegotiating:
		return "MTUNegotiating"
	case StateServicesDiscovering:
		return "ServicesDiscovering"
	case StateNotifyEnabling:
		return "NotifyEnabling"
	case StatePeerNameReading:
		return "PeerNameReading"
	case StateVersionExchanging:
		return "VersionExchanging"
	case StateCapsExchanging:
		return "CapsExchanging"
	case StateHandshakeInit:
		return "HandshakeInit"
	case StateHandshakeCont:
		return "HandshakeCont"
	case StateVerifying:
		return "Verifying"
	case StateKeyConfirmed:
		return "KeyConfirmed"
	case StateDeviceIDExchange:
		return "DeviceIDExchange"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a state the FSM never leaves.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed || s == StateDisconnected
}

// Event drives an FSM transition.
type Event uint8

const (
	// EventStart begins discovery from Idle.
	EventStart Event = iota

	// EventAdvance signals that the current step completed successfully;
	// the FSM moves to the next step in the linear backbone.
	EventAdvance

	// EventBondingObserved signals the OS reported the peer entering
	// BONDING; only meaningful from TransportConnecting.
	EventBondingObserved

	// EventBondingResolved signals the bonded/none terminal was observed;
	// the FSM resumes by re-running the connect step.
	EventBondingResolved

	// EventPeerNameAvailable routes NotifyEnabling through the optional
	// PeerNameReading step instead of straight to VersionExchanging.
	EventPeerNameAvailable

	// EventFail aborts the pairing attempt from any non-terminal state.
	EventFail

	// EventDisconnect tears down the pairing attempt from any non-terminal
	// state because the transport was lost.
	EventDisconnect
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "Start"
	case EventAdvance:
		return "Advance"
	case EventBondingObserved:
		return "BondingObserved"
	case EventBondingResolved:
		return "BondingResolved"
	case EventPeerNameAvailable:
		return "PeerNameAvailable"
	case EventFail:
		return "Fail"
	case EventDisconnect:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// Action is a side effect the Controller must execute after a transition.
// The FSM itself performs none of these; ApplyEvent is a pure function.
type Action uint8

const (
	// ActionRestartConnect re-issues the transport connect step after a
	// bonding pause resolves.
	ActionRestartConnect Action = iota + 1

	// ActionCleanupTransport tears down the transport and clears any
	// in-flight callbacks (spec: "any step failure cleans up transport").
	ActionCleanupTransport

	// ActionNotifyReady signals that the encrypted session is ready to be
	// handed to the feature multiplexer.
	ActionNotifyReady

	// ActionNotifyFailed signals a terminal failure outcome.
	ActionNotifyFailed

	// ActionNotifyDisconnected signals a terminal disconnect outcome.
	ActionNotifyDisconnected
)

func (a Action) String() string {
	switch a {
	case ActionRestartConnect:
		return "RestartConnect"
	case ActionCleanupTransport:
		return "CleanupTransport"
	case ActionNotifyReady:
		return "NotifyReady"
	case ActionNotifyFailed:
		return "NotifyFailed"
	case ActionNotifyDisconnected:
		return "NotifyDisconnected"
	default:
		return "Unknown"
	}
}

// Result holds the outcome of applying an Event to the FSM.
type Result struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	newState State
	actions  []Action
}

// backbone is the linear advance-chain plus the two optional detours
// (bonding pause, peer-name read). Fail/Disconnect are handled uniformly
// in ApplyEvent rather than enumerated per state, since they apply
// identically to every non-terminal state.
var backbone = map[stateEvent]transition{
	{StateIdle, EventStart}:                         {StateDiscovering, nil},
	{StateDiscovering, EventAdvance}:                 {StateTransportConnecting, nil},
	{StateTransportConnecting, EventAdvance}:         {StateMTUNegotiating, nil},
	{StateTransportConnecting, EventBondingObserved}: {StateBondingWait, nil},
	{StateBondingWait, EventBondingResolved}:         {StateTransportConnecting, []Action{ActionRestartConnect}},
	{StateMTUNegotiating, EventAdvance}:              {StateServicesDiscovering, nil},
	{StateServicesDiscovering, EventAdvance}:         {StateNotifyEnabling, nil},
	{StateNotifyEnabling, EventAdvance}:              {StateVersionExchanging, nil},
	{StateNotifyEnabling, EventPeerNameAvailable}:    {StatePeerNameReading, nil},
	{StatePeerNameReading, EventAdvance}:             {StateVersionExchanging, nil},
	{StateVersionExchanging, EventAdvance}:           {StateCapsExchanging, nil},
	{StateCapsExchanging, EventAdvance}:              {StateHandshakeInit, nil},
	{StateHandshakeInit, EventAdvance}:               {StateHandshakeCont, nil},
	{StateHandshakeCont, EventAdvance}:               {StateVerifying, nil},
	{StateVerifying, EventAdvance}:                   {StateKeyConfirmed, nil},
	{StateKeyConfirmed, EventAdvance}:                {StateDeviceIDExchange, nil},
	{StateDeviceIDExchange, EventAdvance}:            {StateReady, []Action{ActionNotifyReady}},
}

// ApplyEvent applies event to currentState and returns the outcome. It is a
// pure function: the caller executes the returned Actions.
func ApplyEvent(currentState State, event Event) Result {
	if currentState.Terminal() {
		return Result{OldState: currentState, NewState: currentState}
	}

	switch event {
	case EventFail:
		return Result{
			OldState: currentState,
			NewState: StateFailed,
			Actions:  []Action{ActionCleanupTransport, ActionNotifyFailed},
			Changed:  true,
		}
	case EventDisconnect:
		return Result{
			OldState: currentState,
			NewState: StateDisconnected,
			Actions:  []Action{ActionCleanupTransport, ActionNotifyDisconnected},
			Changed:  true,
		}
	}

	tr, ok := backbone[stateEvent{currentState, event}]
	if !ok {
		return Result{OldState: currentState, NewState: currentState}
	}

	return Result{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
