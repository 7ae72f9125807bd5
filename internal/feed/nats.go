package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when none is configured.
const DefaultSubjectPrefix = "stockledger"

// NATS publishes events as JSON on "<prefix>.<kind>" subjects so several
// server processes share one change feed.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials url and returns a broker publishing under prefix.
func ConnectNATS(url, prefix string) (*NATS, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	conn, err := nats.Connect(url,
		nats.Name("stockledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix}, nil
}

func (n *NATS) subject(k Kind) string {
	return n.prefix + "." + string(k)
}

func (n *NATS) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.conn.Publish(n.subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

func (n *NATS) Subscribe(h Handler) (func(), error) {
	sub, err := n.conn.Subscribe(n.prefix+".>", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed feed event", "subject", msg.Subject, "error", err)
			return
		}
		h(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to feed: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("unsubscribing from feed", "error", err)
		}
	}, nil
}

func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}
