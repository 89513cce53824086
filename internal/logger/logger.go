// Package logger provides the leveled, colorized console output used by
// every command. Each level is a Printf-style function variable, so call
// sites format directly with no logger object to thread around.
package logger

import (
	"github.com/fatih/color"
)

// Info reports normal progress in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn flags recoverable conditions, such as a cached artifact failing
// verification, in bright magenta.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error reports failures in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Debug traces command lines, downloads, and skipped steps in cyan.
// It stays a no-op until Init enables it.
var Debug func(format string, a ...any)

// Init switches debug tracing on or off. The root command calls it once
// after flag parsing.
func Init(enableDebug bool) {
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		Debug = func(format string, a ...any) {}
	}
}

func init() {
	// Debug must never be nil even if Init is not called (e.g. in tests).
	Debug = func(format string, a ...any) {}
}
