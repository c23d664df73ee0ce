// Package notify delivers out-of-band alerts for login activity.
// Delivery is best-effort and fire-and-forget: a notifier must never
// block or fail the authentication flow it reports on.
package notify

import (
	"github.com/facegate/facegate/pkg/logging"
)

// Event is a notification kind.
type Event string

const (
	// EventLoginFailed fires on a failed password or face attempt
	// against an existing account.
	EventLoginFailed Event = "login_failed"
	// EventLoginSucceeded fires when a login completes both factors.
	EventLoginSucceeded Event = "login_succeeded"
)

// Notifier delivers an event to a recipient address.
type Notifier interface {
	Notify(event Event, recipient string)
}

// subjectFor maps an event to its message subject.
func subjectFor(event Event) string {
	switch event {
	case EventLoginSucceeded:
		return "Login Successful"
	case EventLoginFailed:
		return "Login Attempt Failed"
	default:
		return "Account Activity"
	}
}

// bodyFor maps an event to its message body.
func bodyFor(event Event, recipient string) string {
	switch event {
	case EventLoginSucceeded:
		return "Hello,\n\nYour account " + recipient + " was successfully logged in."
	case EventLoginFailed:
		return "Hello,\n\nThere was a failed login attempt using your email: " + recipient +
			". If this wasn't you, please secure your account."
	default:
		return "Hello,\n\nThere was activity on your account: " + recipient + "."
	}
}

// LogNotifier records events to the application log. It is the default
// backend and the fallback when outbound email is not configured.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(event Event, recipient string) {
	logging.Component("notify").WithFields(logging.Fields{
		"event":     string(event),
		"recipient": recipient,
	}).Info("login notification")
}
