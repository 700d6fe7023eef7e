package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storyteller/internal/export"
	"github.com/snappy-loop/storyteller/internal/handlers"
	"github.com/snappy-loop/storyteller/internal/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web UI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("Starting storyteller")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		storyService, err := newStoryService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		sessions, err := session.NewStore(cfg.SessionSecret, cfg.SessionTTL)
		if err != nil {
			return err
		}

		h := handlers.NewHandler(storyService, sessions, export.NewExporter(cfg.FontPath))

		r := mux.NewRouter()
		r.HandleFunc("/", h.Index).Methods("GET")
		r.HandleFunc("/ws/generate", h.StoryWS).Methods("GET")
		r.HandleFunc("/export", h.Export).Methods("GET")
		r.HandleFunc("/healthz", h.Healthz).Methods("GET")

		// No WriteTimeout: generation streams over a long-lived WebSocket.
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 15 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("Web UI listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return err
		}

		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		log.Info().Msg("Storyteller exited")
		return nil
	},
}
