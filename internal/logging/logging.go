// Package logging wires go.uber.org/zap behind a logr.Logger interface via
// go-logr/zapr. Components accept logr.Logger so they stay decoupled from
// the concrete logging backend.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds the process-wide logger. production selects JSON-structured,
// info-level output; otherwise a human-readable development encoder is used.
func New(production bool) (logr.Logger, func(), error) {
	var zl *zap.Logger
	var err error
	if production {
		zl, err = zap.NewProduction()
	} else {
		zl, err = zap.NewDevelopment()
	}
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

// Noop returns a discard logger, used as a default in constructors so a
// nil logr.Logger is never dereferenced.
func Noop() logr.Logger {
	return logr.Discard()
}
