package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/CloudCabinet/Drive-Service/internal/api"
	"github.com/CloudCabinet/Drive-Service/internal/api/handlers"
	"github.com/CloudCabinet/Drive-Service/internal/api/middleware"
	"github.com/CloudCabinet/Drive-Service/internal/configuration"
	natsroutes "github.com/CloudCabinet/Drive-Service/internal/nats"
	"github.com/CloudCabinet/Drive-Service/internal/services"
)

func main() {
	cfg := configuration.Load()

	if cfg.TraceEnabled {
		tracer.Start(tracer.WithServiceName("drive-service"))
		defer tracer.Stop()
	}

	if err := services.InitializeMinio(cfg.MinIO); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}
	if err := services.InitializePostgres(cfg.Database.ConnectionString()); err != nil {
		log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}

	pg := services.GetPostgresService()
	services.InitializeSessions(pg, cfg.Session.TTL)
	sessions := services.GetSessionManager()
	sessions.StartSweeper(context.Background(), 5*time.Minute)

	services.InitializeDrive(services.GetMinioService(), pg, services.NewActivityRecorder(pg))

	if err := middleware.InitAuth(cfg.KeycloakUrl); err != nil {
		log.Printf("Warning: OIDC init failed, logins will be rejected: %v", err)
	}

	handlers.Configure(services.GetDriveService(), sessions, pg, cfg.CLAMAVURL)

	// NATS is best-effort: the filesystem API works without the event bus.
	if _, _, err := services.ConnectNATS(cfg.NATSURL); err != nil {
		log.Printf("Warning: NATS unavailable, events disabled: %v", err)
	} else {
		for subject, handler := range natsroutes.Routes() {
			durable := "drive-service-" + strings.ReplaceAll(subject, ".", "-")
			if _, err := services.SubscribeEvent(subject, durable, handler); err != nil {
				log.Printf("Warning: failed to subscribe %s: %v", subject, err)
			}
		}
	}

	setupGracefulShutdown()

	r := gin.Default()
	if cfg.TraceEnabled {
		r.Use(gintrace.Middleware("drive-service"))
	}
	api.RegisterRoutes(r, sessions)

	log.Printf("Server starting on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupGracefulShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Shutting down gracefully...")
		services.CloseNATS()
		os.Exit(0)
	}()
}
