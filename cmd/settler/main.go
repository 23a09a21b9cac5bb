package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dicebet/settler/internal/config"
	"github.com/dicebet/settler/internal/service"
)

func main() {
	fmt.Println("Settler daemon")
	fmt.Println("Off-chain settlement for the commit-reveal dice/odds contract")

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("failed to load configuration:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.New(ctx, cfg)
	if err != nil {
		fmt.Println("failed to construct service:", err)
		os.Exit(1)
	}

	if err := svc.Start(ctx); err != nil {
		fmt.Println("failed to start service:", err)
		os.Exit(1)
	}
	fmt.Println(svc.StatusLine())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	svc.Health().Routes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: r}

	go func() {
		fmt.Printf("health surface listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Println("http server error:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("shutting down settler...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	svc.Stop()
	cancel()

	fmt.Println("settler stopped cleanly")
	os.Exit(0)
}
