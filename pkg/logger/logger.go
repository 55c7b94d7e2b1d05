// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Sugared = *zap.SugaredLogger

func New(env string) Sugared {
	var z *zap.Logger
	switch env {
	case "prod", "production":
		z, _ = zap.NewProduction()
	case "quiet":
		// CLI default: warnings and errors only, console encoding.
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		z, _ = c.Build()
	default:
		z, _ = zap.NewDevelopment()
	}
	if z == nil {
		z = zap.NewNop()
	}
	return z.Sugar()
}
