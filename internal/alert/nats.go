// Package alert publishes moderation events (abuse reports, ban changes)
// over NATS for out-of-band tooling such as cmd/modwatch. Alerts are an
// observability side channel: the pairing core never depends on them, and a
// nil *Publisher silently discards events so deployments without NATS keep
// working.
package alert

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for moderation events.
const (
	SubjectReport = "moderation.report"
	SubjectBan    = "moderation.ban"
)

// ReportEvent is published when a user files an abuse report.
type ReportEvent struct {
	ReporterID int64  `json:"reporter_id"`
	TargetID   int64  `json:"target_id"`
	Reason     string `json:"reason"`
	Ts         int64  `json:"ts"`
}

// BanEvent is published when an admin flips a user's banned flag.
type BanEvent struct {
	TargetID int64 `json:"target_id"`
	Banned   bool  `json:"banned"`
	Ts       int64 `json:"ts"`
}

// Publisher wraps a NATS connection for publishing moderation events.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection with infinite reconnects and
// returns a Publisher. name identifies the client to the server.
func Connect(url, name string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[alert] nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[alert] nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("alert: nats connect: %w", err)
	}

	log.Printf("[alert] connected to %s", conn.ConnectedUrl())
	return &Publisher{conn: conn}, nil
}

// Report publishes a ReportEvent. Publish failures are logged, not returned;
// alerting must never fail a user-facing operation.
func (p *Publisher) Report(reporterID, targetID int64, reason string) {
	p.publish(SubjectReport, ReportEvent{
		ReporterID: reporterID,
		TargetID:   targetID,
		Reason:     reason,
		Ts:         time.Now().Unix(),
	})
}

// Ban publishes a BanEvent.
func (p *Publisher) Ban(targetID int64, banned bool) {
	p.publish(SubjectBan, BanEvent{
		TargetID: targetID,
		Banned:   banned,
		Ts:       time.Now().Unix(),
	})
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Printf("[alert] drain: %v", err)
	}
}

func (p *Publisher) publish(subject string, event interface{}) {
	if p == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[alert] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[alert] publish %s: %v", subject, err)
	}
}
