// Command modwatch tails the moderation alert subjects so operators can
// watch reports and ban decisions in real time.
package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pairwise/anonchat/internal/alert"
)

func main() {
	log.Println("Starting moderation watcher...")

	natsURL := nats.DefaultURL
	if v := os.Getenv("NATS_URL"); v != "" {
		natsURL = v
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("anonchat-modwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[modwatch] nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("[modwatch] nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	if _, err := conn.Subscribe(alert.SubjectReport, func(msg *nats.Msg) {
		var event alert.ReportEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[modwatch] bad report event: %v", err)
			return
		}
		log.Printf("[modwatch] REPORT reporter=%d target=%d reason=%q",
			event.ReporterID, event.TargetID, event.Reason)
	}); err != nil {
		log.Fatalf("failed to subscribe to %s: %v", alert.SubjectReport, err)
	}

	if _, err := conn.Subscribe(alert.SubjectBan, func(msg *nats.Msg) {
		var event alert.BanEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[modwatch] bad ban event: %v", err)
			return
		}
		verb := "BANNED"
		if !event.Banned {
			verb = "UNBANNED"
		}
		log.Printf("[modwatch] %s target=%d", verb, event.TargetID)
	}); err != nil {
		log.Fatalf("failed to subscribe to %s: %v", alert.SubjectBan, err)
	}

	log.Printf("moderation watcher running")
	log.Printf("  nats_url: %s", natsURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	if err := conn.Drain(); err != nil {
		log.Printf("nats drain error: %v", err)
	}
}
