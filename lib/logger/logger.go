package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings stores config for Logger
type Settings struct {
	Path string `cfg:"path"`
	Name string `cfg:"name"`
	Ext  string `cfg:"ext"`
}

var sugar = newStdoutLogger()

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// newStdoutLogger creates a logger which prints msg to stdout
func newStdoutLogger() *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(os.Stdout),
		zap.DebugLevel,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Setup directs logs to stdout and a size-rotated file under settings.Path
func Setup(settings *Settings) {
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(settings.Path, settings.Name+"."+settings.Ext),
		MaxSize:    100, // MB
		MaxBackups: 7,
	}
	sink := zapcore.NewMultiWriteSyncer(
		zapcore.Lock(os.Stdout),
		zapcore.AddSync(rotator),
	)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), sink, zap.DebugLevel)
	sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Debug logs debug message through the default logger
func Debug(v ...interface{}) {
	sugar.Debug(v...)
}

// Debugf logs debug message through the default logger
func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// Info logs message through the default logger
func Info(v ...interface{}) {
	sugar.Info(v...)
}

// Infof logs message through the default logger
func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Warn logs warning message through the default logger
func Warn(v ...interface{}) {
	sugar.Warn(v...)
}

// Warnf logs warning message through the default logger
func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// Error logs error message through the default logger
func Error(v ...interface{}) {
	sugar.Error(v...)
}

// Errorf logs error message through the default logger
func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// Fatal prints error message then stop the program
func Fatal(v ...interface{}) {
	sugar.Fatal(v...)
}
