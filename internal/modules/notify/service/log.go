package service

import (
	"context"

	"go.uber.org/zap"
)

// Log is the notifier used when Telegram is not configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, text string) {
	l.log.Info(text)
}
