// Package diag is the library's diagnostic logging indirection. Messages go
// through a replaceable package-level function so embedding hosts can
// redirect or mute them.
package diag

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or host applications can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// level gates informational messages: 0 is silent, 1+ enables information
// and warning messages. Errors always log.
var level = 0

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetLevel sets the diagnostic level. Negative values are treated as 0.
func SetLevel(l int) {
	if l < 0 {
		l = 0
	}
	level = l
}

// Level returns the current diagnostic level.
func Level() int { return level }

// Infof logs an informational message when the level is 1 or higher.
func Infof(format string, v ...interface{}) {
	if level >= 1 {
		Logf(format, v...)
	}
}

// Warnf logs a warning when the level is 1 or higher.
func Warnf(format string, v ...interface{}) {
	if level >= 1 {
		Logf("warning: "+format, v...)
	}
}

// Errorf logs an error message regardless of level.
func Errorf(format string, v ...interface{}) {
	Logf("error: "+format, v...)
}
