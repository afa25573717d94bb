package session

import (
	"errors"
	"reflect"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		evt     Event
		want    State
		effects []Effect
	}{
		{
			name:    "challenge while initializing",
			from:    Initializing,
			evt:     ChallengeIssued{Code: "c1"},
			want:    AwaitingScan,
			effects: []Effect{PersistChallenge{Code: "c1"}, ReplyReady{}},
		},
		{
			name:    "rotated challenge",
			from:    AwaitingScan,
			evt:     ChallengeIssued{Code: "c2"},
			want:    AwaitingScan,
			effects: []Effect{PersistChallenge{Code: "c2"}, ReplyReady{}},
		},
		{
			name:    "scan accepted",
			from:    AwaitingScan,
			evt:     AuthSucceeded{},
			want:    Authenticated,
			effects: []Effect{MarkScanned{}, ReplyReady{Authenticated: true}, StartExport{}},
		},
		{
			name:    "paired device logs in without challenge",
			from:    Initializing,
			evt:     AuthSucceeded{},
			want:    Authenticated,
			effects: []Effect{MarkScanned{}, ReplyReady{Authenticated: true}, StartExport{}},
		},
		{
			name: "export starts",
			from: Authenticated,
			evt:  ExportStarted{},
			want: Exporting,
		},
		{
			name: "export finishes",
			from: Exporting,
			evt:  ExportFinished{},
			want: Idle,
		},
		{
			name: "export never started",
			from: Authenticated,
			evt:  ExportFinished{Err: errors.New("pool closed")},
			want: Idle,
		},
		{
			name: "reconnect while idle is ignored",
			from: Idle,
			evt:  AuthSucceeded{},
			want: Idle,
		},
		{
			name: "challenge after authentication is ignored",
			from: Exporting,
			evt:  ChallengeIssued{Code: "late"},
			want: Exporting,
		},
		{
			name: "export start while pending is ignored",
			from: AwaitingScan,
			evt:  ExportStarted{},
			want: AwaitingScan,
		},
		{
			name: "disconnected is terminal",
			from: Disconnected,
			evt:  ChallengeIssued{Code: "x"},
			want: Disconnected,
		},
		{
			name: "disconnected ignores another disconnect",
			from: Disconnected,
			evt:  ConnectionLost{Reason: "again"},
			want: Disconnected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.from, tt.evt)
			if got != tt.want {
				t.Errorf("Transition(%s) state = %s, want %s", tt.from, got, tt.want)
			}
			if !reflect.DeepEqual(effects, tt.effects) {
				t.Errorf("Transition(%s) effects = %#v, want %#v", tt.from, effects, tt.effects)
			}
		})
	}
}

func TestTransitionAuthFailedKeepsState(t *testing.T) {
	for _, from := range []State{Initializing, AwaitingScan} {
		got, effects := Transition(from, AuthFailed{Reason: "bad"})
		if got != from {
			t.Errorf("state = %s, want %s", got, from)
		}
		if len(effects) != 2 {
			t.Fatalf("effects = %#v", effects)
		}
		if _, ok := effects[0].(LogAuthFailure); !ok {
			t.Errorf("effects[0] = %T, want LogAuthFailure", effects[0])
		}
		rf, ok := effects[1].(ReplyFailed)
		if !ok || !errors.Is(rf.Err, ErrAuthFailed) {
			t.Errorf("effects[1] = %#v, want ReplyFailed(ErrAuthFailed)", effects[1])
		}
	}
}

func TestTransitionConnectionLostFromAnyLiveState(t *testing.T) {
	for _, from := range []State{Initializing, AwaitingScan, Authenticated, Exporting, Idle} {
		got, effects := Transition(from, ConnectionLost{Reason: "logged out"})
		if got != Disconnected {
			t.Errorf("%s: state = %s, want disconnected", from, got)
		}
		var unregister, cancel, release bool
		for _, e := range effects {
			switch e.(type) {
			case Unregister:
				unregister = true
			case CancelExport:
				cancel = true
			case ReleaseHandle:
				release = true
			}
		}
		if !unregister || !cancel || !release {
			t.Errorf("%s: effects = %#v", from, effects)
		}
	}
}

func TestStateString(t *testing.T) {
	if AwaitingScan.String() != "awaiting_scan" {
		t.Errorf("AwaitingScan.String() = %q", AwaitingScan.String())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("State(42).String() = %q", State(42).String())
	}
}
