// Command defconserver runs the process: one HTTP listener serving the
// WebSocket endpoint, a health check, and a session-stats endpoint, atop
// one in-memory App. Grounded directly on the source's root main.go — the
// same flag/listen/signal-shutdown shape — adapted from a single shared
// galaxy server to a catalog-driven, multi-session one.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lab1702/defcon-server/internal/app"
	"github.com/lab1702/defcon-server/internal/catalog"
)

func main() {
	listen := flag.String("listen", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "path to a scenario catalog file (YAML); built-in catalog used if empty")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())

	doc, err := loadCatalog(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load catalog")
	}

	a := app.New(doc, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.ServeWebSocket)
	mux.HandleFunc("/api/sessions", a.ServeSessionStats)
	mux.HandleFunc("/health", a.ServeHealth)

	srv := &http.Server{
		Addr:         *listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Infof("defconserver listening on %s", *listen)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("shutting down (signal: %v)", sig)

	a.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	log.Info("server stopped")
}

func loadCatalog(path string) (*catalog.Document, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}
