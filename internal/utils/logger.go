package utils

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sampling keeps the first logSampleInitial entries with the same level and
// message per logSampleTick, then one in every logSampleThereafter.
const (
	logSampleTick       = time.Second
	logSampleInitial    = 100
	logSampleThereafter = 100
)

// NewLogger builds the service logger. Entries go to stdout; internal zap
// errors go to stderr. Every entry carries the service name and, when set,
// the deployment environment.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.Lock(os.Stdout))
}

func newLogger(cfg LoggingConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var core zapcore.Core = zapcore.NewCore(webhookEncoder(cfg.Encoding), out, zap.NewAtomicLevelAt(level))
	if cfg.Sampling {
		// webhook retries can repeat the same rejection many times a second
		core = zapcore.NewSamplerWithOptions(core, logSampleTick, logSampleInitial, logSampleThereafter)
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	fields := []zap.Field{zap.String("service", cfg.ServiceName)}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		fields = append(fields, zap.String("env", env))
	}
	opts = append(opts, zap.Fields(fields...))

	logger := zap.New(core, opts...)
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		logger = logger.Named(name)
	}
	return logger, nil
}

func webhookEncoder(encoding string) zapcore.Encoder {
	if strings.EqualFold(encoding, "json") {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "time"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder
		return zapcore.NewJSONEncoder(encoderCfg)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewConsoleEncoder(encoderCfg)
}

func MustNewLogger(cfg LoggingConfig) *zap.Logger {
	logger, err := NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}
