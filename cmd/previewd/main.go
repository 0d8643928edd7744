// previewd is the preview engine daemon. Configuration comes from the
// environment; flags override the values that change most between
// deployments.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/draftforge/preview/internal/config"
	"github.com/draftforge/preview/internal/server"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	intentBackend := flag.String("intent-backend", "", "intent backend URL (overrides INTENT_BACKEND_URL)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *intentBackend != "" {
		cfg.Intent.BackendURL = *intentBackend
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("shutting down")
		if err := srv.Close(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("server error: %v", err)
	}
}
