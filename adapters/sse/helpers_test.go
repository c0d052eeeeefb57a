package sse_test

import (
	"io"
	"log/slog"
)

type message struct {
	Channel string
	Data    string
}

func route(m message) string {
	return m.Channel
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
