// Package logging provides the priority-filtered, handler-overridable
// logging used throughout the allocation engine. It mirrors the original
// C library's log.c: a package-global priority threshold and a swappable
// handler function, rather than an injected logger instance, since the
// engine has no per-Device logging requirements the original didn't have
// either.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Priority is a log message's severity. Messages at or below the current
// threshold (see SetPriority) reach the handler.
type Priority int

const (
	// Silent suppresses every message, including errors.
	Silent Priority = iota
	// Error reports unexpected driver/kernel failures.
	Error
	// Debug additionally reports allocation search diagnostics.
	Debug
)

func (p Priority) String() string {
	switch p {
	case Silent:
		return "silent"
	case Error:
		return "error"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParsePriority parses the names used by cmd/liftoffctl's -v flag.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "silent":
		return Silent, true
	case "error":
		return Error, true
	case "debug":
		return Debug, true
	default:
		return Silent, false
	}
}

var (
	mu       sync.Mutex
	priority = Error
	handler  = defaultHandler
)

func defaultHandler(p Priority, msg string) {
	log.New(os.Stderr, "", log.LstdFlags).Output(3, msg)
}

// SetPriority sets the threshold above which messages are suppressed.
// The zero value of Priority (Silent) suppresses everything.
func SetPriority(p Priority) {
	mu.Lock()
	defer mu.Unlock()
	priority = p
}

// Has reports whether messages at p would currently reach the handler.
// Callers building an expensive debug dump (see Output's layer log) should
// check this first.
func Has(p Priority) bool {
	mu.Lock()
	defer mu.Unlock()
	return p <= priority
}

// SetHandler overrides where filtered messages are delivered. Passing nil
// restores the default, which writes to stderr.
func SetHandler(h func(p Priority, msg string)) {
	mu.Lock()
	defer mu.Unlock()
	if h == nil {
		handler = defaultHandler
	} else {
		handler = h
	}
}

// Logf formats and delivers a message at priority p, if p is currently
// active. Args are evaluated eagerly regardless of whether p is active,
// so callers building an expensive argument should guard with Has first.
func Logf(p Priority, format string, args ...any) {
	mu.Lock()
	active := p <= priority
	h := handler
	mu.Unlock()
	if !active {
		return
	}
	h(p, fmt.Sprintf(format, args...))
}
