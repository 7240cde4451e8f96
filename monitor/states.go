package monitor

import "github.com/jrsteele09/go-auth-session/statemachine"

// State is the lifecycle phase of the tab's session.
type State string

const (
	StateUnknown    State = "unknown"
	StateRestoring  State = "restoring"
	StateValid      State = "valid"
	StateWarning    State = "warning"
	StateRefreshing State = "refreshing"
	// StateStale holds a session whose refresh retries ran out. It is
	// left until an external trigger refreshes it or it expires.
	StateStale     State = "stale"
	StateSuspended State = "suspended"
	StateLoggedOut State = "logged_out"
)

// Event drives State transitions.
type Event string

const (
	EventRestore          Event = "restore"
	EventRestored         Event = "restored"
	EventRestoreFailed    Event = "restore_failed"
	EventNearExpiry       Event = "near_expiry"
	EventRefresh          Event = "refresh"
	EventRefreshed        Event = "refreshed"
	EventRefreshExhausted Event = "refresh_exhausted"
	EventOffline          Event = "offline"
	EventOnline           Event = "online"
	EventExpired          Event = "expired"
	EventSignedIn         Event = "signed_in"
	EventSignedOut        Event = "signed_out"
)

type rule = statemachine.Rule[State, Event]

// holding are the states in which the tab owns a session.
var holding = []State{StateValid, StateWarning, StateRefreshing, StateStale}

func transitions() []rule {
	return []rule{
		{Event: EventRestore, To: StateRestoring},
		{Event: EventRestored, From: []State{StateRestoring}, To: StateValid},
		{Event: EventRestoreFailed, From: []State{StateRestoring}, To: StateLoggedOut},

		{Event: EventNearExpiry, From: []State{StateValid}, To: StateWarning},
		{Event: EventRefresh, From: []State{StateValid, StateWarning, StateStale}, To: StateRefreshing},
		{Event: EventRefreshed, From: []State{StateRefreshing}, To: StateValid},
		{Event: EventRefreshExhausted, From: []State{StateRefreshing}, To: StateStale},

		{Event: EventOffline, From: holding, To: StateSuspended},
		{Event: EventOnline, From: []State{StateSuspended}, To: StateValid},

		{Event: EventExpired, From: append([]State{StateSuspended}, holding...), To: StateLoggedOut},
		{Event: EventSignedIn, To: StateValid},
		{Event: EventSignedOut, To: StateLoggedOut},
	}
}

func newMachine() *statemachine.Machine[State, Event] {
	return statemachine.New(StateUnknown, transitions()...)
}
