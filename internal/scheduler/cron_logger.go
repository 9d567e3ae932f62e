package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// zapCronLogger 将 cron 内部日志接到 zap
// cron 的 Info 日志（wake/run/schedule）较多，降为 Debug
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

var _ cron.Logger = (*zapCronLogger)(nil)

func newCronLogger(logger *zap.Logger) *zapCronLogger {
	return &zapCronLogger{sugar: logger.Sugar()}
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
