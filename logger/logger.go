// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package logger is the logging seam for the hashkit binaries. The
// library packages never log; a tool's runner functions take a Logger
// so tests can substitute their own sink.
//
// The interface carries only what the tools use: progress lines and
// fatal verification failures.
package logger

// Logger reports progress and aborts on verification failures.
type Logger interface {
	// Infof logs a progress line.
	Infof(format string, args ...interface{})
	// Fatalf logs a failure and terminates the process.
	Fatalf(format string, args ...interface{})
}
