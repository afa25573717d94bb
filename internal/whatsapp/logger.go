package whatsapp

import (
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger forwards whatsmeow logs into the global zap logger.
type zapLogger struct {
	module string
	level  zapcore.Level
}

// NewLogger returns a whatsmeow logger writing to zap.L() at or above level
// (DEBUG, INFO, WARN, ERROR).
func NewLogger(module, level string) waLog.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.WarnLevel
	}
	return &zapLogger{module: module, level: lvl}
}

func (l *zapLogger) log(lvl zapcore.Level, msg string, args []interface{}) {
	if lvl < l.level {
		return
	}
	if ce := zap.L().Check(lvl, "whatsmeow: "+fmt.Sprintf(msg, args...)); ce != nil {
		ce.Write(zap.String("module", l.module))
	}
}

func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.log(zapcore.WarnLevel, msg, args) }
func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.log(zapcore.ErrorLevel, msg, args) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.log(zapcore.InfoLevel, msg, args) }
func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.log(zapcore.DebugLevel, msg, args) }

func (l *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{module: l.module + "/" + module, level: l.level}
}
