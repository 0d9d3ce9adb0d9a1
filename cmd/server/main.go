package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/shipflow/internal/config"
	"github.com/rpattn/shipflow/internal/db"
	"github.com/rpattn/shipflow/internal/ingestion"
	"github.com/rpattn/shipflow/internal/middleware"
	"github.com/rpattn/shipflow/internal/repository"

	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	uploadRepo := repository.NewUploadRepository(conn.Pool)
	shipmentRepo := repository.NewShipmentRepository(conn.Pool)
	referenceRepo := repository.NewReferenceRepository(conn.Pool)

	service := ingestion.NewService(
		uploadRepo,
		shipmentRepo,
		referenceRepo,
		cfg.Pipeline.Synonyms,
		ingestion.WithChunkSize(cfg.Pipeline.ChunkSize),
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	uploadHandler := middleware.LoggingMiddleware(
		ingestion.NewHTTPHandler(service, uploadRepo),
	)

	mux := http.NewServeMux()
	mux.Handle("/uploads", corsHandler.Handler(uploadHandler))
	mux.Handle("/uploads/", corsHandler.Handler(uploadHandler))

	server := &http.Server{
		Addr:         ":8080",
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("Starting ingestion server on :8080")
		log.Println("Upload endpoint available at http://localhost:8080/uploads")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
