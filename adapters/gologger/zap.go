package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig describes the JSON sink. An empty FilePath writes to stderr only.
type ZapConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 7,
		MaxAgeDays: 14,
		Compress:   true,
	}
}

// ZapLogger implements glog.Logger, glog.FieldsLogger and glog.LoggerProvider
// on top of a zap SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a JSON logger from cfg. When a file path is set the
// output is rotated by lumberjack, and Console tees to stdout as well.
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	defaults := DefaultZapConfig()
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaults.MaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaults.MaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaults.MaxAgeDays
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := encoderConfig()
	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if path := strings.TrimSpace(cfg.FilePath); path != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	cores := []zapcore.Core{zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level)}
	if cfg.Console && strings.TrimSpace(cfg.FilePath) != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level))
	}
	return NewZapLoggerFromCore(zapcore.NewTee(cores...), zap.ErrorOutput(sink)), nil
}

// NewZapLoggerToWriter writes JSON lines to w at the given level.
func NewZapLoggerToWriter(w io.Writer, level string) (*ZapLogger, error) {
	if w == nil {
		return nil, fmt.Errorf("gologger: writer is required")
	}
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), parsed)
	return NewZapLoggerFromCore(core), nil
}

func NewZapLoggerFromCore(core zapcore.Core, opts ...zap.Option) *ZapLogger {
	return &ZapLogger{sugar: zap.New(core, opts...).Sugar()}
}

func (l *ZapLogger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *ZapLogger) Fatal(msg string, args ...any) { l.sugar.Fatalw(msg, args...) }

func (l *ZapLogger) WithContext(context.Context) glog.Logger {
	return l
}

// WithFields attaches fields in key order so output stays stable.
func (l *ZapLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return &ZapLogger{sugar: l.sugar.With(args...)}
}

// GetLogger returns a child logger named after the component.
func (l *ZapLogger) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return l
	}
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "msg",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
}

func parseLevel(value string) (zapcore.Level, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return zapcore.DebugLevel, nil
	}
	level, err := zapcore.ParseLevel(value)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("gologger: invalid log level %q: %w", value, err)
	}
	return level, nil
}

var (
	_ glog.Logger         = (*ZapLogger)(nil)
	_ glog.FieldsLogger   = (*ZapLogger)(nil)
	_ glog.LoggerProvider = (*ZapLogger)(nil)
)
