package notify

import (
	"os"

	"github.com/resend/resend-go/v2"

	"github.com/facegate/facegate/pkg/logging"
)

// EmailNotifier sends login notifications through the Resend API.
// Sends happen on their own goroutine; failures are logged and
// swallowed so the auth flow never waits on or fails with email.
type EmailNotifier struct {
	apiKey string
	from   string
}

// NewEmailNotifier creates an EmailNotifier. The API key is read from
// the RESEND_API_KEY environment variable.
func NewEmailNotifier(from string) *EmailNotifier {
	return &EmailNotifier{
		apiKey: os.Getenv("RESEND_API_KEY"),
		from:   from,
	}
}

// Notify sends the event by email, asynchronously.
func (n *EmailNotifier) Notify(event Event, recipient string) {
	go n.send(event, recipient)
}

func (n *EmailNotifier) send(event Event, recipient string) {
	client := resend.NewClient(n.apiKey)

	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{recipient},
		Subject: subjectFor(event),
		Text:    bodyFor(event, recipient),
	}

	if _, err := client.Emails.Send(params); err != nil {
		logging.Component("notify").WithError(err).WithFields(logging.Fields{
			"event":     string(event),
			"recipient": recipient,
		}).Warn("failed to send notification email")
		return
	}

	logging.Component("notify").Debugf("sent %s email to %s", event, recipient)
}
