package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	serviceName = "spot_bot"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Config describes where log lines go.
type Config struct {
	Dir   string
	File  string
	Level string
}

// New builds the root logger: console on stderr plus a plain-text log file.
func New(conf Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if conf.Level != "" {
		if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", conf.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}

	if conf.File != "" {
		path := conf.File
		if conf.Dir != "" {
			if err := os.MkdirAll(conf.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
			path = filepath.Join(conf.Dir, conf.File)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).
		With(zap.String("service", serviceName)), nil
}

// TradeLine renders an event as "event: k1=v1 | k2=v2" and returns the same
// pairs as zap fields. kv is read as alternating keys and values; a trailing
// key without a value is dropped.
func TradeLine(event string, kv ...any) (string, []zap.Field) {
	var b strings.Builder
	b.WriteString(event)
	b.WriteString(":")

	fields := make([]zap.Field, 0, len(kv)/2+1)
	fields = append(fields, zap.String("event", event))
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%s=%v", key, kv[i+1])
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return b.String(), fields
}

// Trade logs a trade line at info level.
func Trade(l *zap.Logger, event string, kv ...any) {
	msg, fields := TradeLine(event, kv...)
	l.Info(msg, fields...)
}

// TradeWarn logs a trade line at warn level.
func TradeWarn(l *zap.Logger, event string, kv ...any) {
	msg, fields := TradeLine(event, kv...)
	l.Warn(msg, fields...)
}

// TradeError logs a trade line at error level with the cause attached.
func TradeError(l *zap.Logger, event string, err error, kv ...any) {
	msg, fields := TradeLine(event, kv...)
	l.Error(msg, append(fields, zap.Error(err))...)
}
