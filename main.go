package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gavel/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		panic(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(args.ServerConfig, logger)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:    args.ServerURL,
		Handler: server.Router(),
	}
	httpServer.RegisterOnShutdown(server.CloseStreams)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", slog.Any("error", err))
			stop()
		}
	}()

	// 取得租約前仍會處理出價與事件串流，只有結算排程需要等待
	if err := server.Start(ctx); err != nil {
		logger.Error("Fail to start server", slog.Any("error", err))
	} else {
		select {
		case <-ctx.Done():
		case <-server.Lost():
			logger.Error("Engine lease lost, shutting down")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Fail to shutdown HTTP server", slog.Any("error", err))
	}
}
