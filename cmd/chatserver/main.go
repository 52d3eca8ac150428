// Command chatserver runs the anonymous chat service: a WebSocket front
// end over the pairing engine, the message relay, and the moderation
// stores.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairwise/anonchat/internal/alert"
	"github.com/pairwise/anonchat/internal/app"
	"github.com/pairwise/anonchat/internal/metrics"
	"github.com/pairwise/anonchat/internal/moderation"
	"github.com/pairwise/anonchat/internal/pairing"
	"github.com/pairwise/anonchat/internal/payment"
	"github.com/pairwise/anonchat/internal/profile"
	"github.com/pairwise/anonchat/internal/protocol"
	"github.com/pairwise/anonchat/internal/ratelimit"
	"github.com/pairwise/anonchat/internal/register"
	"github.com/pairwise/anonchat/internal/relay"
	"github.com/pairwise/anonchat/internal/report"
	"github.com/pairwise/anonchat/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	natsURL := os.Getenv("NATS_URL") // empty disables moderation alerts

	var adminID int64
	if v := os.Getenv("ADMIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid ADMIN_ID %q: %v", v, err)
		}
		adminID = n
	}

	var bannedWords []string
	if v := os.Getenv("BANNED_WORDS"); v != "" {
		bannedWords = strings.Split(v, ",")
	}

	// --- Postgres ---
	profiles, err := profile.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := profile.Migrate(profiles.DB()); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	reports := report.NewStore(profiles.DB())

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	limiter := ratelimit.NewLimiter(redisClient)
	payments := payment.NewStore(redisClient)

	// --- NATS (optional) ---
	var alerts *alert.Publisher
	if natsURL != "" {
		hostname, _ := os.Hostname()
		alerts, err = alert.Connect(natsURL, "chatserver-"+hostname)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	log.Printf("anonchat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  nats_url:        %s", natsURL)
	log.Printf("  admin_id:        %d", adminID)
	log.Printf("  banned_words:    %d terms", len(bannedWords))

	registry := pairing.NewRegistry()
	engine := pairing.NewEngine(registry, profiles)
	filter := moderation.NewFilter(bannedWords)

	dispatcher := ws.NewMessageDispatcher()
	server := ws.NewServer(config, dispatcher.Dispatch)
	out := ws.NewMessenger(server)

	router := relay.NewRouter(registry, profiles, filter, limiter, out)
	gateway := app.NewGateway(app.Config{
		Profiles: profiles,
		Engine:   engine,
		Router:   router,
		Form:     register.NewForm(profiles),
		Reports:  reports,
		Payments: payments,
		Limiter:  limiter,
		Alerts:   alerts,
		Out:      out,
		AdminID:  adminID,
	})

	opCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}

	// hello binds the connection to a user identity; everything else
	// requires a bound connection.
	dispatcher.Register(protocol.TypeHello, func(conn *ws.Connection, msg interface{}) {
		hello, ok := msg.(protocol.HelloMsg)
		if !ok || hello.UserID == 0 {
			return
		}
		server.Bind(conn, hello.UserID)
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Start(ctx, hello.UserID, hello.Username); err != nil {
			log.Printf("hello user=%d: %v", hello.UserID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeStart, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Start(ctx, userID, ""); err != nil {
			log.Printf("start user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeRegister, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Register(ctx, userID, ""); err != nil {
			log.Printf("register user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeSearch, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Search(ctx, userID, ""); err != nil {
			log.Printf("search user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeStop, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Stop(ctx, userID, ""); err != nil {
			log.Printf("stop user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeText, func(conn *ws.Connection, userID int64, msg interface{}) {
		text, ok := msg.(protocol.TextMsg)
		if !ok {
			return
		}
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Input(ctx, userID, "", text.Text); err != nil {
			log.Printf("text user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeReport, func(conn *ws.Connection, userID int64, msg interface{}) {
		rep, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Report(ctx, userID, "", rep.Reason); err != nil {
			log.Printf("report user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypePremium, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Premium(ctx, userID, ""); err != nil {
			log.Printf("premium user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeBuy, func(conn *ws.Connection, userID int64, msg interface{}) {
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.Buy(ctx, userID, ""); err != nil {
			log.Printf("buy user=%d: %v", userID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeAdminBan, func(conn *ws.Connection, userID int64, msg interface{}) {
		ban, ok := msg.(protocol.AdminBanMsg)
		if !ok {
			return
		}
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.AdminBan(ctx, userID, ban.TargetID); err != nil {
			log.Printf("admin_ban actor=%d target=%d: %v", userID, ban.TargetID, err)
		}
	})

	dispatcher.RegisterAuthed(protocol.TypeAdminUnban, func(conn *ws.Connection, userID int64, msg interface{}) {
		unban, ok := msg.(protocol.AdminUnbanMsg)
		if !ok {
			return
		}
		ctx, cancel := opCtx()
		defer cancel()
		if err := gateway.AdminUnban(ctx, userID, unban.TargetID); err != nil {
			log.Printf("admin_unban actor=%d target=%d: %v", userID, unban.TargetID, err)
		}
	})

	server.SetOnDisconnect(gateway.Disconnect)

	server.Handle("/metrics", metrics.Handler())
	server.Handle("/payments/confirm", paymentConfirmHandler(gateway))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		alerts.Close()
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := profiles.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// paymentConfirmHandler settles a paid invoice. The payment provider calls
// it with POST /payments/confirm?invoice_id=<uuid>.
func paymentConfirmHandler(gateway *app.Gateway) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		invoiceID := r.URL.Query().Get("invoice_id")
		if invoiceID == "" {
			http.Error(w, "invoice_id is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		userID, err := gateway.ConfirmPayment(ctx, invoiceID)
		if err != nil {
			log.Printf("payment confirm %s: %v", invoiceID, err)
			http.Error(w, "invoice not found or expired", http.StatusNotFound)
			return
		}

		log.Printf("payment confirmed invoice=%s user=%d", invoiceID, userID)
		w.WriteHeader(http.StatusOK)
	})
}
