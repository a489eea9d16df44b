package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EarlyLog reports failures that happen before configuration is loaded,
// when the level and format of the real logger are still unknown.
type EarlyLog struct {
	sugar *zap.SugaredLogger
}

func NewEarlyLog() *EarlyLog {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)
	return &EarlyLog{sugar: zap.New(core).Sugar()}
}

// Error prints the message. Callers return the error themselves so cobra
// controls the exit code.
func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.sugar.Errorf(msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}
