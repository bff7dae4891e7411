// Package log configures zap as the backend of log/slog for every unsus
// binary.
//
// Initialize() should be called before the first logging statement; until it
// is, slog's own default handler is used.
//
// See the Zap docs for more details: https://pkg.go.dev/go.uber.org/zap
package log

import (
	golog "log"
	"log/slog"
	"strings"

	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// LoggingEnv is used to represent a specific configuration used by a given
// environment.
type LoggingEnv string

// String implements the Stringer interface.
func (e LoggingEnv) String() string {
	return string(e)
}

const (
	LoggingEnvDev  LoggingEnv = "dev"
	LoggingEnvProd LoggingEnv = "prod"
)

var defaultLoggingEnv = LoggingEnvDev

// Initialize sets up zap for env and installs it as slog.Default.
//
// "prod" uses the zapdriver production configuration (structured JSON for
// Cloud Logging). Anything else uses zap's development configuration. level
// is parsed with zapcore.ParseLevel; an empty or invalid level keeps the
// configuration's default.
func Initialize(env, level string) *zap.Logger {
	var config zap.Config
	var opts []zap.Option
	switch strings.ToLower(env) {
	case LoggingEnvProd.String():
		defaultLoggingEnv = LoggingEnvProd
		config = zapdriver.NewProductionConfig()
		config.Sampling = nil
		// Labels are only handled correctly by the zapdriver core.
		opts = append(opts, zapdriver.WrapCore())
	default:
		defaultLoggingEnv = LoggingEnvDev
		config = zap.NewDevelopmentConfig()
	}
	if l, err := zapcore.ParseLevel(level); level != "" && err == nil {
		config.Level = zap.NewAtomicLevelAt(l)
	}

	logger, err := config.Build(opts...)
	if err != nil {
		golog.Panic(err)
	}
	zap.RedirectStdLog(logger)
	slog.SetDefault(NewSlogLogger(logger.Core()))
	return logger
}

// NewSlogLogger returns a slog.Logger writing to core that also emits the
// attributes stored with ContextWithAttrs.
func NewSlogLogger(core zapcore.Core) *slog.Logger {
	return slog.New(NewContextLogHandler(zapslog.NewHandler(core, zapslog.WithCaller(true))))
}

// LabelAttr causes attributes written by zapdriver to be marked as labels inside
// StackDriver when LoggingEnv is LoggingEnvProd. Otherwise it wraps slog.String.
func LabelAttr(key, value string) slog.Attr {
	if defaultLoggingEnv == LoggingEnvProd {
		return slog.String("labels."+key, value)
	}
	return slog.String(key, value)
}
