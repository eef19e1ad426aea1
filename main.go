package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Cross4solution/MedGama-sub003/internal/config"
	"github.com/Cross4solution/MedGama-sub003/internal/connections"
	"github.com/Cross4solution/MedGama-sub003/internal/events"
	"github.com/Cross4solution/MedGama-sub003/internal/handlers"
	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/postgres"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/sqlite"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/valkey"
	"github.com/Cross4solution/MedGama-sub003/internal/middleware"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
	"github.com/Cross4solution/MedGama-sub003/internal/rabbitmq"
	"github.com/Cross4solution/MedGama-sub003/internal/telemetry"
	"github.com/Cross4solution/MedGama-sub003/internal/ws"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	store, err := kv.Open(ctx, cfg.KV.Driver, cfg.KVDriver())
	if err != nil {
		log.Fatalf("failed to open kv store: %v", err)
	}
	defer store.Close()

	bus := events.NewLocalBus()
	instanceID := uuid.NewString()
	if cfg.AMQP.URL != "" {
		bridge, err := rabbitmq.NewBridge(cfg.AMQP.URL, cfg.AMQP.ChangeExchange, instanceID, bus)
		if err != nil {
			log.Printf("change bridge disabled err=%v", err)
		} else {
			defer bridge.Close()
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("amqp publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	emitter := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRouting, cfg.ServiceName, cfg.Environment)

	repo := connections.NewStore(store, bus)
	hub := ws.NewHub()
	hub.Attach(bus)
	defer hub.Detach()

	validator := middleware.NewTokenValidator(cfg.JWTSecret)
	inviteHandler := handlers.NewInviteHandler(repo, emitter)
	changesWS := ws.NewChangesHandler(hub, validator)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance": instanceID, "kv": cfg.KV.Driver})
	})
	router.GET("/ws/changes", changesWS.Handle)

	api := router.Group("/", middleware.AuthMiddleware(validator))
	inviteHandler.Register(api)

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("medgama-connections listening port=%s instance=%s kv=%s", cfg.Port, instanceID, cfg.KV.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("server shutdown err=%v", err)
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Printf("tracing shutdown err=%v", err)
	}
}
