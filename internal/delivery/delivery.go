// Package delivery abstracts the out-of-band channel that carries a
// confirmation link to the user. The contract is deliberately thin:
// deliver this opaque message to this address. The protocol core never
// depends on how that happens.
package delivery

import (
	"bytes"
	"context"
	"log"
	"text/template"
	"time"
)

// Sink delivers a rendered confirmation message to an email address.
type Sink interface {
	Deliver(ctx context.Context, email, subject, body string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, email, subject, body string) error

func (f SinkFunc) Deliver(ctx context.Context, email, subject, body string) error {
	return f(ctx, email, subject, body)
}

// LogSink logs messages instead of sending them. It is the development
// stand-in for a real mail transport.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, email, subject, body string) error {
	log.Printf("confirmation mail to %s: %s\n%s", email, subject, body)
	return nil
}

// Params is passed as data when executing the message template.
type Params struct {
	Email      string
	Where      string // hostname of the site being signed in to
	Link       string
	Expiration time.Duration
}

// DefaultTemplate is the default confirmation message body.
const DefaultTemplate = `Hi {{.Email}},

Someone asked to sign in to {{.Where}} as you. If that was you, follow
this link to confirm:

{{.Link}}

The link is valid for {{printf "%.f" .Expiration.Minutes}} minutes.

If you did not try to sign in, you can ignore this email.
`

var messageTemplate = template.Must(template.New("confirmation").Parse(DefaultTemplate))

// RenderMessage executes the confirmation message template.
func RenderMessage(params Params) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
