package core

import (
	"net/mail"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		Body    string // text/plain
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.Body != ""
}

// ParseAddresses parses plain email addresses, skipping invalid ones.
func ParseAddresses(addrs []string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if parsed, err := mail.ParseAddress(a); err == nil {
			out = append(out, *parsed)
		}
	}
	return out
}
