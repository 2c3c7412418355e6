// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import "github.com/rs/zerolog"

// Leveled adapts a zerolog.Logger to the message-only logging interface used
// by the build pipeline.
type Leveled struct {
	logger zerolog.Logger
}

// NewLeveled wraps logger.
func NewLeveled(logger zerolog.Logger) *Leveled {
	return &Leveled{logger: logger}
}

// Info logs msg at info level.
func (l *Leveled) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs msg at warn level.
func (l *Leveled) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Fatal logs msg at fatal level. Unlike zerolog's Fatal it does not exit;
// the caller returns an error and the command decides the exit code.
func (l *Leveled) Fatal(msg string) {
	l.logger.WithLevel(zerolog.FatalLevel).Msg(msg)
}
