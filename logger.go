package account

import (
	"go.uber.org/zap"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{sugar: l.Sugar()}
}

func (z zapLogger) Debug(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z zapLogger) Info(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z zapLogger) Warn(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z zapLogger) Error(format string, args ...any) { z.sugar.Errorf(format, args...) }

type zapProvider struct {
	base *zap.Logger
}

// NewZapLoggerProvider returns a provider handing out loggers named
// after the component asking for them.
func NewZapLoggerProvider(l *zap.Logger) LoggerProvider {
	if l == nil {
		l = zap.NewNop()
	}
	return zapProvider{base: l}
}

func (p zapProvider) GetLogger(name string) Logger {
	return NewZapLogger(p.base.Named(name))
}

// ResolveLogger picks the logger for a component: an explicit logger
// wins, then the provider, then the stdout fallback.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	if logger != nil {
		return logger
	}
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return l
		}
	}
	return defLogger{}
}
