package ws

import "time"

// State is the lifecycle state of a Manager's connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed" // terminal until an explicit Connect
)

// Signal is an input to the connection state machine.
type Signal int

const (
	SignalConnect     Signal = iota // explicit Connect call
	SignalOpened                    // handshake succeeded
	SignalLost                      // dial failure or abnormal close
	SignalClosedClean               // peer closed with a normal closure
	SignalRetry                     // reconnect timer fired
	SignalDisconnect                // explicit Disconnect call
)

func (s Signal) String() string {
	switch s {
	case SignalConnect:
		return "connect"
	case SignalOpened:
		return "opened"
	case SignalLost:
		return "lost"
	case SignalClosedClean:
		return "closed_clean"
	case SignalRetry:
		return "retry"
	case SignalDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Action is the side effect the Manager must perform after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionDial
	ActionScheduleReconnect
	ActionClose
	ActionGiveUp
)

// ReconnectPolicy bounds automatic reconnection.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait before the given 1-based attempt. Backoff is
// linear: BaseDelay × attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Transition is the result of applying a Signal.
type Transition struct {
	State    State
	Attempts int
	Action   Action
	Delay    time.Duration // set for ActionScheduleReconnect
}

// Next computes the state machine step. It is pure; the Manager owns the
// resulting timer and socket.
func Next(cur State, sig Signal, attempts int, p ReconnectPolicy) Transition {
	stay := Transition{State: cur, Attempts: attempts, Action: ActionNone}

	switch sig {
	case SignalConnect:
		return Transition{State: StateConnecting, Attempts: 0, Action: ActionDial}

	case SignalDisconnect:
		return Transition{State: StateDisconnected, Attempts: 0, Action: ActionClose}

	case SignalOpened:
		if cur != StateConnecting && cur != StateReconnecting {
			return stay
		}
		return Transition{State: StateConnected, Attempts: 0, Action: ActionNone}

	case SignalClosedClean:
		if cur == StateDisconnected || cur == StateFailed {
			return stay
		}
		return Transition{State: StateDisconnected, Attempts: 0, Action: ActionNone}

	case SignalLost:
		if cur == StateDisconnected || cur == StateFailed {
			return stay
		}
		if attempts < p.MaxAttempts {
			next := attempts + 1
			return Transition{
				State:    StateReconnecting,
				Attempts: next,
				Action:   ActionScheduleReconnect,
				Delay:    p.Delay(next),
			}
		}
		return Transition{State: StateFailed, Attempts: attempts, Action: ActionGiveUp}

	case SignalRetry:
		if cur != StateReconnecting {
			return stay
		}
		return Transition{State: StateReconnecting, Attempts: attempts, Action: ActionDial}
	}

	return stay
}
