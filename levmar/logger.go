// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levmar

import (
	"fmt"
	"io"
	"os"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the summary after the last iteration
	LogLast LogLevel = 0
	// LogEval print also ‖e‖² and ‖Jᵀe‖∞ every `level` iterations for any (0 < level < 99)
	LogEval LogLevel = 1
	// LogTrace print every damping adjustment (rejected steps and singular systems)
	LogTrace LogLevel = 99
	// LogVerbose print also p and Δp at every iteration (level > 100)
	LogVerbose LogLevel = 101
)

// Logger handles logging output for the optimizer.
// Note the writers must be thread-safe when an Optimizer is shared by goroutines.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for the iteration table.
}

func newLogger(l *Logger) Logger {
	if l == nil {
		return Logger{Level: LogNoop, Msg: io.Discard, Out: io.Discard}
	}
	c := *l
	if c.Msg == nil {
		c.Msg = os.Stdout
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	return c
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

func (l *Logger) vec(name string, v []float64) {
	l.log(" %s =", name)
	for i, x := range v {
		l.log(" %.6e", x)
		if (i+1)%6 == 0 && i+1 < len(v) {
			l.log("\n     ")
		}
	}
	l.log("\n")
}
