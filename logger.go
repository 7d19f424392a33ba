package kbot

import (
	"log"
	"os"
)

// Logger is the leveled sink the core consumes. Process startup wires a
// concrete implementation in; the core never assumes anything beyond these
// four levels existing.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// stdLogger adapts the standard library's *log.Logger to the Logger
// interface, prefixing each line with its level. NewStdLogger returns one
// for installing via WithLogger; without that option the default is
// nopLogger.
type stdLogger struct {
	l     *log.Logger
	debug bool
}

// NewStdLogger returns a Logger backed by the standard library, writing to
// os.Stderr. When debug is false, Debugf is a no-op.
func NewStdLogger(debug bool) Logger {
	return &stdLogger{l: log.New(os.Stderr, "", log.LstdFlags), debug: debug}
}

func (s *stdLogger) Infof(format string, v ...interface{}) {
	s.l.Printf("INFO "+format, v...)
}

func (s *stdLogger) Warnf(format string, v ...interface{}) {
	s.l.Printf("WARN "+format, v...)
}

func (s *stdLogger) Errorf(format string, v ...interface{}) {
	s.l.Printf("ERROR "+format, v...)
}

func (s *stdLogger) Debugf(format string, v ...interface{}) {
	if !s.debug {
		return
	}
	s.l.Printf("DEBUG "+format, v...)
}

// nopLogger discards everything. Used as the zero-value default so Server
// and Manager never need a nil check before logging.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
