package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Cross4solution/MedGama-sub003/internal/apiclient"
	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/config"
	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/postgres"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/sqlite"
	_ "github.com/Cross4solution/MedGama-sub003/internal/kv/valkey"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
	"github.com/Cross4solution/MedGama-sub003/internal/tui"
	"github.com/Cross4solution/MedGama-sub003/internal/uploads"
)

func main() {
	self := flag.String("name", os.Getenv("MEDGAMA_USER"), "display name used on your own messages")
	logPath := flag.String("log", "medgama-chat.log", "log file; the terminal is taken by the UI")
	flag.Parse()

	logFile, err := tea.LogToFile(*logPath, "medgama-chat ")
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdown, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, "medgama-chat", cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	store, err := kv.Open(ctx, cfg.KV.Driver, cfg.KVDriver())
	if err != nil {
		log.Fatalf("failed to open kv store: %v", err)
	}
	defer store.Close()

	if token := os.Getenv("MEDGAMA_TOKEN"); token != "" {
		if err := store.Set(ctx, realtime.TokenKey, []byte(token)); err != nil {
			log.Fatalf("failed to store token: %v", err)
		}
	}

	httpClient := observability.HTTPClient()
	api := apiclient.New(cfg.APIBaseURL, httpClient, store)
	provider := realtime.NewProvider(cfg.Realtime(), store, httpClient)
	defer provider.Disconnect()

	opts := tui.Options{
		API:      api,
		Realtime: provider,
		Self:     *self,
		Previews: attachments.NewMemoryPreviews(),
	}
	if cfg.Uploads.GCSBucket != "" {
		gcs, err := uploads.NewGCS(ctx, cfg.Uploads.GCSBucket, cfg.Uploads.GCSCredentialsFile)
		if err != nil {
			log.Fatalf("failed to open upload bucket: %v", err)
		}
		defer gcs.Close()
		opts.Uploader = gcs
	}

	log.Printf("medgama-chat starting api=%s realtime=%t kv=%s", cfg.APIBaseURL, provider.Available(), cfg.KV.Driver)
	if err := tui.Run(opts); err != nil {
		log.Fatalf("client error: %v", err)
	}
}
