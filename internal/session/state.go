package session

import "fmt"

// State of a tenant session.
type State int

const (
	Initializing  State = iota // handle created, handshake not finished
	AwaitingScan               // pairing challenge issued
	Authenticated              // credential accepted
	Exporting                  // export run in progress
	Idle                       // export finished, session stays live
	Disconnected               // terminal
)

var stateNames = map[State]string{
	Initializing:  "initializing",
	AwaitingScan:  "awaiting_scan",
	Authenticated: "authenticated",
	Exporting:     "exporting",
	Idle:          "idle",
	Disconnected:  "disconnected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Pending reports whether the session has not authenticated yet.
func (s State) Pending() bool {
	return s == Initializing || s == AwaitingScan
}

// Live reports whether the session authenticated and is still connected.
func (s State) Live() bool {
	return s == Authenticated || s == Exporting || s == Idle
}

// Event drives a Transition.
type Event interface {
	isEvent()
}

type (
	ChallengeIssued struct{ Code string }
	AuthSucceeded   struct{ JID string }
	AuthFailed      struct{ Reason string }
	ExportStarted   struct{}
	ExportFinished  struct{ Err error }
	ConnectionLost  struct{ Reason string }
)

func (ChallengeIssued) isEvent() {}
func (AuthSucceeded) isEvent()   {}
func (AuthFailed) isEvent()      {}
func (ExportStarted) isEvent()   {}
func (ExportFinished) isEvent()  {}
func (ConnectionLost) isEvent()  {}

// Effect is a side effect the driver executes after a Transition, in order.
type Effect interface {
	isEffect()
}

type (
	PersistChallenge struct{ Code string }
	ReplyReady       struct{ Authenticated bool }
	ReplyFailed      struct{ Err error }
	MarkScanned      struct{}
	StartExport      struct{}
	LogAuthFailure   struct{ Reason string }
	CancelExport     struct{}
	ReleaseHandle    struct{}
	Unregister       struct{}
)

func (PersistChallenge) isEffect() {}
func (ReplyReady) isEffect()       {}
func (ReplyFailed) isEffect()      {}
func (MarkScanned) isEffect()      {}
func (StartExport) isEffect()      {}
func (LogAuthFailure) isEffect()   {}
func (CancelExport) isEffect()     {}
func (ReleaseHandle) isEffect()    {}
func (Unregister) isEffect()       {}

// Transition is the session state machine. It is pure: the returned effects
// are executed by the Manager. Pairs not listed below leave the state
// unchanged and produce no effects.
//
//	Initializing|AwaitingScan + ChallengeIssued -> AwaitingScan  [PersistChallenge ReplyReady]
//	Initializing|AwaitingScan + AuthSucceeded   -> Authenticated [MarkScanned ReplyReady StartExport]
//	Initializing|AwaitingScan + AuthFailed      -> unchanged     [LogAuthFailure ReplyFailed]
//	Authenticated + ExportStarted               -> Exporting
//	Authenticated|Exporting + ExportFinished    -> Idle
//	any but Disconnected + ConnectionLost       -> Disconnected  [CancelExport ReleaseHandle Unregister ReplyFailed]
func Transition(from State, evt Event) (State, []Effect) {
	if from == Disconnected {
		return from, nil
	}
	switch e := evt.(type) {
	case ChallengeIssued:
		if from.Pending() {
			return AwaitingScan, []Effect{PersistChallenge{Code: e.Code}, ReplyReady{}}
		}
	case AuthSucceeded:
		if from.Pending() {
			return Authenticated, []Effect{MarkScanned{}, ReplyReady{Authenticated: true}, StartExport{}}
		}
	case AuthFailed:
		if from.Pending() {
			return from, []Effect{
				LogAuthFailure{Reason: e.Reason},
				ReplyFailed{Err: fmt.Errorf("%w: %s", ErrAuthFailed, e.Reason)},
			}
		}
	case ExportStarted:
		if from == Authenticated {
			return Exporting, nil
		}
	case ExportFinished:
		if from == Authenticated || from == Exporting {
			return Idle, nil
		}
	case ConnectionLost:
		return Disconnected, []Effect{
			CancelExport{},
			ReleaseHandle{},
			Unregister{},
			ReplyFailed{Err: fmt.Errorf("%w: %s", ErrDisconnected, e.Reason)},
		}
	}
	return from, nil
}
