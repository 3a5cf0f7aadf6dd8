package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthbot/healthbot/internal/client"
	"github.com/healthbot/healthbot/internal/config"
)

func main() {
	cfg := config.LoadClientConfig()

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		log.Fatalf("Unknown display timezone %q: %v", cfg.DisplayTimezone, err)
	}

	session, err := client.LoadSession(cfg.SessionFile)
	if err != nil {
		log.Printf("Discarding unreadable session: %v", err)
		session = client.NewSession()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewClient(cfg.APIBaseURL, &http.Client{Timeout: 60 * time.Second})
	save := func(s *client.Session) error { return client.SaveSession(cfg.SessionFile, s) }
	app := client.NewApp(api, session, loc, os.Stdout, save)

	if err := app.Run(ctx, os.Stdin); err != nil {
		log.Fatalf("Client stopped: %v", err)
	}
}
