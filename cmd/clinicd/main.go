package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/config"
	"github.com/thiagoors/clinic-queue-system/internal/httpapi"
	"github.com/thiagoors/clinic-queue-system/internal/hub"
	"github.com/thiagoors/clinic-queue-system/internal/relay"
	"github.com/thiagoors/clinic-queue-system/internal/store/postgres"
	"github.com/thiagoors/clinic-queue-system/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("clinic-queue")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{Location: cfg.Location()})
	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	handler := httpapi.NewHandler(st)
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())

	// Display boards and kiosk panels connect without credentials, matching
	// the open REST endpoints they pair with.
	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := hub.NewClient(uuid.NewString())
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			raw, err := session.Recv()
			if err != nil {
				return
			}
			msg, ok := hub.ParseMessage([]byte(raw))
			if !ok {
				continue
			}
			switch msg.Action {
			case "join-room":
				h.Join(client, msg.Room)
			case "leave-room":
				h.Leave(client, msg.Room)
			}
		}
	})
	mux.Handle("/realtime/", sockjsHandler)

	chain := httpapi.SessionMiddleware(st)(mux)
	chain = limiter.Middleware(chain)
	chain = httpapi.LoggingMiddleware(chain)
	otelHandler := otelhttp.NewHandler(chain, "clinic-queue")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := relay.New(st, h, cfg.RelayPollInterval, cfg.RelayBatchSize)
	go rl.Run(ctx)

	go func() {
		log.Printf("clinic-queue listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
