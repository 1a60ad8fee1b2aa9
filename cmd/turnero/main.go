package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"turnero/internal/auth"
	"turnero/internal/config"
	"turnero/internal/dispatch"
	"turnero/internal/httpapi"
	"turnero/internal/hub"
	"turnero/internal/notifier"
	"turnero/internal/stagegraph"
	"turnero/internal/store/postgres"
	"turnero/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	shutdownTelemetry := telemetry.Setup("turnero")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	graph := stagegraph.Default()
	if cfg.StageTopology != "" {
		parsed, err := stagegraph.Parse([]byte(cfg.StageTopology))
		if err != nil {
			log.Fatalf("stage topology: %v", err)
		}
		graph = parsed
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	engine := dispatch.NewEngine(st, graph)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	h := hub.New()
	handler := httpapi.NewHandler(engine, st, tokens)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		ActorPerMinute: cfg.ActorRateLimitPerMinute,
		ActorBurst:     cfg.ActorRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", newRealtimeHandler(engine, tokens, h))
	mux.Handle("/", handler.Routes())

	// Auth runs before the limiter so the per-actor buckets see identity.
	stack := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(httpapi.AuthMiddleware(tokens, limiter.Middleware(mux))),
		"turnero",
	)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      stack,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go func() {
		log.Printf("turnero listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	poller := notifier.NewPoller(st, h, cfg.PollInterval, cfg.PollBatchSize, cfg.OutboxRetention)
	go poller.Run(rootCtx)

	go runDaySweep(rootCtx, st, cfg.SweepInterval, cfg.SweepBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// runDaySweep cancels leftover tickets from previous days so stale entries
// never linger on boards or block stations.
func runDaySweep(ctx context.Context, st *postgres.Store, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for {
				sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				count, err := st.SweepDay(sweepCtx, todayUTC(), batch)
				cancel()
				if err != nil {
					log.Printf("day sweep error: %v", err)
					break
				}
				total += count
				if count < batch {
					break
				}
			}
			if total > 0 {
				log.Printf("day sweep cancelled %d tickets", total)
			}
		}
	}
}

func newRealtimeHandler(engine *dispatch.Engine, tokens *auth.Manager, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		token := tokenFromRequest(req)
		if token == "" {
			_ = session.Close(4001, "missing token")
			return
		}
		if _, err := tokens.Parse(token); err != nil {
			_ = session.Close(4002, "invalid token")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseControl([]byte(msg))
			if !ok {
				continue
			}
			switch parsed.Action {
			case "unsubscribe":
				h.UpdateSubscription(client, hub.Subscription{})
			case "subscribe":
				h.UpdateSubscription(client, hub.Subscription{Date: parsed.Date, Stage: parsed.Stage})
			case "snapshot":
				sendSnapshot(session, engine, parsed.Date)
			}
		}
	})
}

func sendSnapshot(session sockjs.Session, engine *dispatch.Engine, rawDate string) {
	date := todayUTC()
	if rawDate != "" {
		parsed, err := time.Parse("2006-01-02", rawDate)
		if err != nil {
			return
		}
		date = parsed
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snapshot, err := engine.Snapshot(ctx, date)
	if err != nil {
		log.Printf("realtime snapshot error: %v", err)
		return
	}
	payload, err := notifier.MarshalSnapshot(snapshot)
	if err != nil {
		return
	}
	_ = session.Send(string(payload))
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
