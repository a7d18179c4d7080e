package ws

import (
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 5, BaseDelay: time.Second}

	tests := []struct {
		name     string
		cur      State
		sig      Signal
		attempts int
		want     Transition
	}{
		{
			name: "connect from disconnected dials",
			cur:  StateDisconnected, sig: SignalConnect,
			want: Transition{State: StateConnecting, Action: ActionDial},
		},
		{
			name: "connect from failed resets attempts",
			cur:  StateFailed, sig: SignalConnect, attempts: 5,
			want: Transition{State: StateConnecting, Action: ActionDial},
		},
		{
			name: "opened while connecting",
			cur:  StateConnecting, sig: SignalOpened,
			want: Transition{State: StateConnected},
		},
		{
			name: "opened while reconnecting resets attempts",
			cur:  StateReconnecting, sig: SignalOpened, attempts: 3,
			want: Transition{State: StateConnected},
		},
		{
			name: "opened after disconnect is ignored",
			cur:  StateDisconnected, sig: SignalOpened,
			want: Transition{State: StateDisconnected},
		},
		{
			name: "first loss schedules attempt one",
			cur:  StateConnected, sig: SignalLost,
			want: Transition{State: StateReconnecting, Attempts: 1, Action: ActionScheduleReconnect, Delay: time.Second},
		},
		{
			name: "backoff is linear",
			cur:  StateReconnecting, sig: SignalLost, attempts: 2,
			want: Transition{State: StateReconnecting, Attempts: 3, Action: ActionScheduleReconnect, Delay: 3 * time.Second},
		},
		{
			name: "loss at max attempts fails",
			cur:  StateReconnecting, sig: SignalLost, attempts: 5,
			want: Transition{State: StateFailed, Attempts: 5, Action: ActionGiveUp},
		},
		{
			name: "loss while failed stays failed",
			cur:  StateFailed, sig: SignalLost, attempts: 5,
			want: Transition{State: StateFailed, Attempts: 5},
		},
		{
			name: "loss while disconnected is ignored",
			cur:  StateDisconnected, sig: SignalLost,
			want: Transition{State: StateDisconnected},
		},
		{
			name: "clean close disconnects",
			cur:  StateConnected, sig: SignalClosedClean,
			want: Transition{State: StateDisconnected},
		},
		{
			name: "retry while reconnecting dials",
			cur:  StateReconnecting, sig: SignalRetry, attempts: 2,
			want: Transition{State: StateReconnecting, Attempts: 2, Action: ActionDial},
		},
		{
			name: "retry after disconnect is ignored",
			cur:  StateDisconnected, sig: SignalRetry,
			want: Transition{State: StateDisconnected},
		},
		{
			name: "disconnect closes",
			cur:  StateReconnecting, sig: SignalDisconnect, attempts: 2,
			want: Transition{State: StateDisconnected, Action: ActionClose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.cur, tt.sig, tt.attempts, p)
			if got != tt.want {
				t.Errorf("Next(%s, %s, %d) = %+v, want %+v", tt.cur, tt.sig, tt.attempts, got, tt.want)
			}
		})
	}
}

func TestNext_AttemptsNeverExceedMax(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	state, attempts := StateConnected, 0
	for i := 0; i < 10; i++ {
		tr := Next(state, SignalLost, attempts, p)
		state, attempts = tr.State, tr.Attempts
		if attempts > p.MaxAttempts {
			t.Fatalf("attempts %d exceeded max %d", attempts, p.MaxAttempts)
		}
	}
	if state != StateFailed {
		t.Errorf("expected failed, got %s", state)
	}
}
