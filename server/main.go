package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spotchat/server/config"
	"spotchat/server/handler"
	"spotchat/server/metrics"
	"spotchat/server/room"
)

func main() {
	configPath := flag.String("config", os.Getenv("SPOTCHAT_CONFIG"), "path to YAML config file")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	// .env is optional; real env vars win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if *dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	m := metrics.New()
	manager := room.NewManager(room.Options{
		Logger:           logger,
		Metrics:          m,
		Catalog:          cfg.Room,
		Responder:        room.CannedResponder{},
		AIReplyDelay:     cfg.AIReplyDelay(),
		MaxMessageLength: cfg.MaxMessageLength,
	})

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.HandleHealth).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")
	r.HandleFunc("/rooms/{roomId}", handler.HandleRoomInfo(manager)).Methods("GET")
	r.HandleFunc("/chat/{roomId}", handler.HandleWebSocket(manager, logger, cfg.RequireVerification))

	srv := &http.Server{
		Handler:           r,
		Addr:              cfg.Addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting", zap.String("addr", cfg.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		manager.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server exiting")
}
