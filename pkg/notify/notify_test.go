package notify

import (
	"strings"
	"testing"
)

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{event: EventLoginSucceeded, want: "Login Successful"},
		{event: EventLoginFailed, want: "Login Attempt Failed"},
		{event: Event("unknown"), want: "Account Activity"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			if got := subjectFor(tt.event); got != tt.want {
				t.Errorf("subjectFor(%s) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}

func TestBodyFor(t *testing.T) {
	body := bodyFor(EventLoginFailed, "alice@example.com")
	if !strings.Contains(body, "alice@example.com") {
		t.Error("failed-login body should name the recipient address")
	}
	if !strings.Contains(body, "secure your account") {
		t.Error("failed-login body should advise securing the account")
	}

	body = bodyFor(EventLoginSucceeded, "alice@example.com")
	if !strings.Contains(body, "successfully logged in") {
		t.Error("success body should mention the login")
	}
}

func TestLogNotifier(t *testing.T) {
	// Must not panic or block.
	LogNotifier{}.Notify(EventLoginSucceeded, "alice@example.com")
	LogNotifier{}.Notify(EventLoginFailed, "alice@example.com")
}
