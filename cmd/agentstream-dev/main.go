// Command agentstream-dev runs a local run server speaking the agentstream
// protocol. With ANTHROPIC_API_KEY set it streams real model output; without
// it, it replays a scripted stream, which is enough to develop a UI against.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aideator/agentstream/devserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	model := flag.String("model", "", "Anthropic model to stream from (requires ANTHROPIC_API_KEY)")
	eventRate := flag.Float64("rate", 20, "content events per second per agent in scripted mode")
	heartbeat := flag.Duration("heartbeat", 5*time.Second, "heartbeat interval")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var streamer devserver.Streamer
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		logger.Info("using Anthropic streamer", zap.String("model", *model))
		streamer = &devserver.Anthropic{
			Client: anthropic.NewClient(),
			Model:  anthropic.Model(*model),
		}
	} else {
		logger.Info("ANTHROPIC_API_KEY not set, using scripted streamer")
		streamer = &devserver.Scripted{}
	}

	srv := devserver.NewServer(streamer, &devserver.Config{
		Heartbeat: *heartbeat,
		EventRate: rate.Limit(*eventRate),
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	srv.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
