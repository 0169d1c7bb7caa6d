package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"docrag/internal/auth"
	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/embed"
	"docrag/internal/indexer"
	"docrag/internal/retriever"
	"docrag/internal/store"
	"docrag/pkg/models"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("docrag-api", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("provider", cfg.Provider).
		Str("backend", cfg.Backend).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting docrag api")

	ctx := context.Background()

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
	logger.Info().Int("embedding_dim", resilient.Dim()).Msg("embedding client initialized")

	st, err := store.Open(ctx, cfg.Backend, store.Options{
		Path:        cfg.StorePath,
		DatabaseURL: cfg.Database,
		Dim:         resilient.Dim(),
	})
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer st.Close()

	if err := st.EnsureCollection(ctx); err != nil {
		log.Fatalf("Failed to provision collection: %v", err)
	}

	authn, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	if err != nil {
		log.Fatalf("Failed to configure auth: %v", err)
	}

	svc := retriever.NewService(resilient, st)
	ix := indexer.New(st, resilient, chunker.New(cfg.ChunkSize, cfg.ChunkOverlap), cfg.CorpusRoot)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/search", authn.Middleware(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}
		k := 5
		if v := r.URL.Query().Get("k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				k = n
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		res, err := svc.Search(ctx, q, k, r.URL.Query().Get("category"))
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("q", q).Msg("search failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// never an empty body
		w.Header().Set("Content-Type", "application/json")
		if res == nil {
			res = []models.SearchResult{}
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			_, _ = w.Write([]byte("[]"))
		}
		hlog.FromRequest(r).Info().Str("q", q).Int("k", k).Dur("dur", time.Since(start)).Msg("served search")
	}))

	mux.HandleFunc("/context", authn.Middleware(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}
		maxChunks := 8
		if v := r.URL.Query().Get("max_chunks"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				maxChunks = n
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		// An empty body means "no grounding available"; callers proceed
		// without context.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(svc.Context(ctx, q, maxChunks)))
	}))

	mux.HandleFunc("/index", authn.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		summary, err := ix.Run(r.Context(), nil)
		if err != nil {
			if errors.Is(err, indexer.ErrIndexingInProgress) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("indexing run failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			http.Error(w, "failed to encode summary", http.StatusInternalServerError)
		}
	}))

	mux.HandleFunc("/stats", authn.Middleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats, err := st.Stats(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, "failed to encode stats", http.StatusInternalServerError)
		}
	}))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	s := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}
