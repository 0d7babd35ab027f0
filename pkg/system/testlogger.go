package system

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a sugared logger that writes through t.Log at debug
// level, so output only shows up for failing or verbose tests.
func NewTestLogger(t testing.TB) *zap.SugaredLogger {
	return NewTestZapLogger(t).Sugar()
}

// NewTestZapLogger is NewTestLogger for callers that need the *zap.Logger,
// such as the audit sinks.
func NewTestZapLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel), zaptest.WrapOptions(zap.AddCaller()))
}
