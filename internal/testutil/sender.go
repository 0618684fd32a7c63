package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/saplingsites/orders-email/internal/email"
)

// SentEmail is one call recorded by Sender.
type SentEmail struct {
	Message email.Message
	Options email.SendOptions
}

// Sender records sends instead of calling a provider.
type Sender struct {
	// Fail, when set, is consulted before each send; a non-nil error fails it.
	Fail func(msg email.Message) error

	mu   sync.Mutex
	sent []SentEmail
	n    int
}

func (s *Sender) Send(ctx context.Context, msg email.Message, opts email.SendOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		if err := s.Fail(msg); err != nil {
			return "", err
		}
	}
	s.n++
	s.sent = append(s.sent, SentEmail{Message: msg, Options: opts})
	return fmt.Sprintf("msg_%d", s.n), nil
}

// Sent returns a copy of the successful sends in call order.
func (s *Sender) Sent() []SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentEmail(nil), s.sent...)
}

// SentTo returns the recipients of successful sends in call order.
func (s *Sender) SentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	to := make([]string, 0, len(s.sent))
	for _, e := range s.sent {
		to = append(to, e.Message.To)
	}
	return to
}
