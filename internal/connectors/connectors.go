// Package connectors fetches inbound order mail from a mailbox.
package connectors

import (
	"context"
	"time"
)

// Message is one raw RFC 822 message pulled from a mailbox.
type Message struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt time.Time
	Raw        []byte
}

type MailConnector interface {
	FetchUnseen(ctx context.Context, mailbox string, max int) ([]Message, error)
}
