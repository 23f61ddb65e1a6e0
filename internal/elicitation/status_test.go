package elicitation

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusCancelled, false},
		{StatusProcessing, StatusExpired, false},
		{StatusCompleted, StatusPending, false},
		{StatusExpired, StatusProcessing, false},
		{StatusCancelled, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired, StatusCancelled}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal status %s can move to %s", from, to)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("processing"); err != nil || s != StatusProcessing {
		t.Errorf("ParseStatus(processing) = %q, %v", s, err)
	}
	if _, err := ParseStatus("created"); err == nil {
		t.Error("expected error for unknown status")
	}
}
