/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import "fmt"

// PrefixedLogger decorates a FieldLogger prepending a fixed text to every logged message.
type PrefixedLogger struct {
	base   FieldLogger
	prefix string
}

// NewPrefixedLogger returns a FieldLogger that prepends prefix to each message
// and delegates the rest to base.
func NewPrefixedLogger(base FieldLogger, prefix string) FieldLogger {
	return &PrefixedLogger{base, prefix}
}

// With returns a new logger with the given additional fields.
func (l *PrefixedLogger) With(fs ...Field) FieldLogger {
	return &PrefixedLogger{l.base.With(fs...), l.prefix}
}

// Debug logs a prefixed message at "debug" level.
func (l *PrefixedLogger) Debug(text string, fs ...Field) {
	l.base.Debug(l.prefix+text, fs...)
}

// Debugf logs a formatted prefixed message at "debug" level.
func (l *PrefixedLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Info logs a prefixed message at "info" level.
func (l *PrefixedLogger) Info(text string, fs ...Field) {
	l.base.Info(l.prefix+text, fs...)
}

// Infof logs a formatted prefixed message at "info" level.
func (l *PrefixedLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warn logs a prefixed message at "warn" level.
func (l *PrefixedLogger) Warn(text string, fs ...Field) {
	l.base.Warn(l.prefix+text, fs...)
}

// Warnf logs a formatted prefixed message at "warn" level.
func (l *PrefixedLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Error logs a prefixed message at "error" level.
func (l *PrefixedLogger) Error(text string, fs ...Field) {
	l.base.Error(l.prefix+text, fs...)
}

// Errorf logs a formatted prefixed message at "error" level.
func (l *PrefixedLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel calls the given fn if logging at the specified level is enabled,
// passing a LogFunc that prepends the prefix before delegating.
func (l *PrefixedLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.base.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.prefix+msg, fs...)
		})
	})
}

// WithLevel returns a new logger with an additional level check.
// Messages below both the given and the previously set level are ignored
// ("debug" is the minimal level, "error" is the maximal one),
// so the level may effectively only be raised.
func (l *PrefixedLogger) WithLevel(level Level) FieldLogger {
	return &PrefixedLogger{l.base.WithLevel(level), l.prefix}
}
