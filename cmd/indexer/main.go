package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/embed"
	"docrag/internal/indexer"
	"docrag/internal/store"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("docrag-indexer", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := embed.New(ctx, &embed.Config{
		Provider: embed.Provider(cfg.Provider),
		APIKey:   cfg.APIKey,
		Model:    cfg.EmbedModel,
		Dim:      cfg.Dim,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	resilient := embed.WithFallback(embedder)

	st, err := store.Open(ctx, cfg.Backend, store.Options{
		Path:        cfg.StorePath,
		DatabaseURL: cfg.Database,
		Dim:         resilient.Dim(),
	})
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer st.Close()

	ix := indexer.New(st, resilient, chunker.New(cfg.ChunkSize, cfg.ChunkOverlap), cfg.CorpusRoot)

	summary, err := ix.Run(ctx, func(processed int, current string) {
		fmt.Fprintf(os.Stderr, "\r[%d] %s\033[K", processed, current)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	fmt.Printf("processed=%d chunks=%d errors=%d skipped=%d fallbacks=%d\n",
		summary.Processed, summary.Chunks, summary.Errors, summary.Skipped, summary.Fallbacks)
}
