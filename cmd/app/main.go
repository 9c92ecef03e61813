// Command app runs the relay hub process: it loads configuration, wires the
// session registry, hub, janitor and HTTP facade together, and serves until
// interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"

	"github.com/sameergiri/relayhub/internal/api"
	"github.com/sameergiri/relayhub/internal/config"
	"github.com/sameergiri/relayhub/internal/hub"
	"github.com/sameergiri/relayhub/internal/janitor"
	"github.com/sameergiri/relayhub/internal/persist"
	"github.com/sameergiri/relayhub/internal/registry"
	"github.com/sameergiri/relayhub/pkg/utils"
)

func main() {
	cfg := config.Load()

	store, err := persist.Open(cfg.DatabaseURL, "./data")
	if err != nil {
		log.WithError(err).Fatal("app: could not open stats/feedback store")
	}
	defer store.Close()

	reg := registry.New()
	h := hub.New(cfg, reg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := janitor.New(reg, h, cfg.FileTTL, cfg.JanitorInterval)
	go j.Run(ctx)

	server := api.NewServer(cfg, h, store)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Info("app: shutting down")
		cancel()
		_ = httpServer.Shutdown(context.Background())
	}()

	printBanner(cfg)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("app: server error")
	}
}

func printBanner(cfg config.Config) {
	ip := utils.GetLocalIP()
	if ip == "" {
		ip = "127.0.0.1"
	}
	log.WithField("ip", ip).
		WithField("port", cfg.Port).
		WithField("url", fmt.Sprintf("http://%s:%d", ip, cfg.Port)).
		Info("relayhub: ready")
}
