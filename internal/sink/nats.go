package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/muandane/slugcache/internal/event"
)

const DefaultNATSSubject = "slugcache.events"

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each event as JSON on a subject.
type NATS struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// DialNATS connects to url and returns a sink owning the connection.
func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("slugcache"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	s := NewNATS(conn, subject)
	s.conn = conn
	return s, nil
}

func NewNATS(pub Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATS{pub: pub, subject: subject}
}

func (n *NATS) Record(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains the connection when the sink owns it.
func (n *NATS) Close(ctx context.Context) error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
