package h1

import (
	"github.com/indigo-web/h1/event"
	"github.com/indigo-web/h1/http/status"
)

// Role tells the two ends of a connection apart. It is fixed for the
// lifetime of a Conn.
type Role uint8

const (
	Client Role = iota
	Server
)

func (r Role) Other() Role {
	return 1 - r
}

func (r Role) String() string {
	if r == Client {
		return "CLIENT"
	}

	return "SERVER"
}

// State is the position of one role inside its message cycle.
type State uint8

const (
	// Idle awaits the start of a new message for this direction.
	Idle State = iota + 1
	// SendResponse is server-only: the request arrived, a response start
	// line must come next.
	SendResponse
	// SendBody means the start line went through and body transfer is in
	// progress.
	SendBody
	// Done means EndOfMessage went through; waiting for the peer to finish.
	Done
	// MustClose forbids further cycles: this side has to close once done.
	MustClose
	// Closed means the shutdown signal was sent or received.
	Closed
	// MightSwitchProtocol is client-only: a switch proposal is in flight and
	// the response will decide.
	MightSwitchProtocol
	// SwitchedProtocol means the handoff completed; further bytes are not
	// HTTP.
	SwitchedProtocol
	// Error is terminal.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case SendResponse:
		return "SEND_RESPONSE"
	case SendBody:
		return "SEND_BODY"
	case Done:
		return "DONE"
	case MustClose:
		return "MUST_CLOSE"
	case Closed:
		return "CLOSED"
	case MightSwitchProtocol:
		return "MIGHT_SWITCH_PROTOCOL"
	case SwitchedProtocol:
		return "SWITCHED_PROTOCOL"
	case Error:
		return "ERROR"
	default:
		return "<unknown state>"
	}
}

type eventKind uint8

const (
	kindRequest eventKind = iota + 1
	kindInfoResponse
	kindResponse
	kindData
	kindEndOfMessage
	kindClosed
)

func kindOf(e event.Event) eventKind {
	switch e.(type) {
	case *event.Request:
		return kindRequest
	case *event.InformationalResponse:
		return kindInfoResponse
	case *event.Response:
		return kindResponse
	case *event.Data:
		return kindData
	case *event.EndOfMessage:
		return kindEndOfMessage
	case *event.ConnectionClosed:
		return kindClosed
	default:
		return 0
	}
}

// switchKind is a bitmask of protocol switch flavors a request proposed.
type switchKind uint8

const (
	switchUpgrade switchKind = 1 << iota
	switchConnect
)

// connState couples the two per-role machines with the keep-alive latch and
// the protocol switch sub-state. Every externally triggered transition runs
// the state-coupling rules to a fixed point, so the struct is always
// observed consistent.
type connState struct {
	states        [2]State
	keepAlive     bool
	pendingSwitch switchKind
}

func newConnState() connState {
	return connState{
		states:    [2]State{Client: Idle, Server: Idle},
		keepAlive: true,
	}
}

// transition is the pure per-role transition function. The switch flavor is
// nonzero only for server events that accept a pending proposal.
func transition(role Role, from State, kind eventKind, sw switchKind) (State, bool) {
	if kind == kindClosed {
		switch from {
		case Idle, Done, MustClose, Closed:
			return Closed, true
		}

		return 0, false
	}

	if role == Client {
		switch {
		case from == Idle && kind == kindRequest:
			return SendBody, true
		case from == SendBody && kind == kindData:
			return SendBody, true
		case from == SendBody && kind == kindEndOfMessage:
			return Done, true
		}

		return 0, false
	}

	switch {
	case from == Idle && kind == kindRequest:
		// coupled entry: the client just fired its request
		return SendResponse, true
	case from == Idle && kind == kindResponse:
		// responding without a complete request, e.g. to garbage input
		return SendBody, true
	case from == SendResponse && kind == kindInfoResponse && sw == switchUpgrade:
		return SwitchedProtocol, true
	case from == SendResponse && kind == kindResponse && sw == switchConnect:
		return SwitchedProtocol, true
	case from == SendResponse && kind == kindInfoResponse:
		return SendResponse, true
	case from == SendResponse && kind == kindResponse:
		return SendBody, true
	case from == SendBody && kind == kindData:
		return SendBody, true
	case from == SendBody && kind == kindEndOfMessage:
		return Done, true
	}

	return 0, false
}

// processEvent runs one event through the machine of its originating role,
// firing the coupled server transition for requests and the fixed-point
// rules afterwards.
func (cs *connState) processEvent(role Role, kind eventKind, sw switchKind) error {
	if sw != 0 {
		if cs.pendingSwitch&sw == 0 {
			return status.ErrUnsolicitedSwitch
		}
	} else if kind == kindResponse {
		// a plain final response denies whatever switch was proposed
		cs.pendingSwitch = 0
	}

	if err := cs.fire(role, kind, sw); err != nil {
		return err
	}

	if role == Client && kind == kindRequest {
		if err := cs.fire(Server, kindRequest, 0); err != nil {
			return err
		}
	}

	cs.fixedPoint()
	return nil
}

func (cs *connState) fire(role Role, kind eventKind, sw switchKind) error {
	next, ok := transition(role, cs.states[role], kind, sw)
	if !ok {
		return status.NewError(status.InternalServerError,
			"illegal transition: "+role.String()+" cannot handle the event in state "+cs.states[role].String())
	}

	cs.states[role] = next
	return nil
}

func (cs *connState) proposeSwitch(sw switchKind) {
	cs.pendingSwitch |= sw
	cs.fixedPoint()
}

func (cs *connState) disableKeepAlive() {
	cs.keepAlive = false
	cs.fixedPoint()
}

func (cs *connState) processError(role Role) {
	cs.states[role] = Error
	cs.fixedPoint()
}

// fixedPoint applies the coupling rules until nothing changes anymore.
func (cs *connState) fixedPoint() {
	for {
		start := cs.states

		if cs.pendingSwitch != 0 && cs.states[Client] == Done {
			cs.states[Client] = MightSwitchProtocol
		}
		if cs.pendingSwitch == 0 && cs.states[Client] == MightSwitchProtocol {
			cs.states[Client] = Done
		}

		if !cs.keepAlive {
			for role := Client; role <= Server; role++ {
				if cs.states[role] == Done {
					cs.states[role] = MustClose
				}
			}
		}

		switch {
		case cs.states[Client] == MightSwitchProtocol && cs.states[Server] == SwitchedProtocol:
			cs.states[Client] = SwitchedProtocol
		case cs.states[Server] == Done && closesPeer(cs.states[Client]):
			cs.states[Server] = MustClose
		case cs.states[Client] == Done && closesPeer(cs.states[Server]):
			cs.states[Client] = MustClose
		case cs.states[Server] == Idle && cs.states[Client] == Closed:
			cs.states[Server] = MustClose
		case cs.states[Client] == Idle && cs.states[Server] == Closed:
			cs.states[Client] = MustClose
		}

		if cs.states == start {
			return
		}
	}
}

// closesPeer reports whether a side in this state dooms a DONE peer to
// MUST_CLOSE.
func closesPeer(s State) bool {
	return s == Closed || s == Error
}

func (cs *connState) startNextCycle() error {
	if cs.states != [2]State{Client: Done, Server: Done} {
		return status.ErrNotBothDone
	}
	if !cs.keepAlive {
		return status.ErrReuseKeepAliveOff
	}
	if cs.pendingSwitch != 0 {
		return status.ErrReuseAfterSwitch
	}

	cs.states = [2]State{Client: Idle, Server: Idle}
	return nil
}
