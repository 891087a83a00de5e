package relay

import (
	"context"
	"log"
)

// Local relays in-process through a Service. Failures become Apology so the
// session never sees an error.
type Local struct {
	svc *Service
}

func NewLocal(svc *Service) *Local { return &Local{svc: svc} }

func (l *Local) Send(ctx context.Context, text string) string {
	reply, err := l.svc.Reply(ctx, text)
	if err != nil {
		log.Printf("relay: local reply failed: %v", err)
		return Apology
	}
	if reply == "" {
		log.Printf("relay: local reply empty")
		return Apology
	}
	return reply
}
