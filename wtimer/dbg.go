// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package wtimer

import (
	"fmt"

	"github.com/intuitivelabs/slog"
)

// Log is the package-wide logger for the wtimer engine. Level defaults
// to warnings and above; raise it with slog.SetLevel(&Log, slog.LDBG)
// when troubleshooting wheel or timer issues.
var Log slog.Log = slog.New(slog.LWARN, slog.LOptNone, slog.LStdErr)

// DBGon returns true if debug messages are enabled.
func DBGon() bool { return Log.DBGon() }

// ERRon returns true if error messages are enabled.
func ERRon() bool { return Log.ERRon() }

// WARNon returns true if warning messages are enabled.
func WARNon() bool { return Log.WARNon() }

// DBG is a shorthand for logging a debug message.
func DBG(f string, a ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: wtimer: ", f, a...)
}

// ERR is a shorthand for logging an error message.
func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: wtimer: ", f, a...)
}

// WARN is a shorthand for logging a warning message.
func WARN(f string, a ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: wtimer: ", f, a...)
}

// BUG is a shorthand for logging a bug message.
func BUG(f string, a ...interface{}) {
	Log.LLog(slog.LBUG, 1, "BUG: wtimer: ", f, a...)
}

// PANIC logs a fatal invariant break and panics. Invariant breaks (a
// negative drained tick count, an out-of-range slot, a timer found on
// two lists) are not recoverable: the wheel's internal bookkeeping can
// no longer be trusted.
func PANIC(f string, a ...interface{}) {
	s := fmt.Sprintf(f, a...)
	Log.LLog(slog.LBUG, 1, "PANIC: wtimer: ", "%s", s)
	panic(s)
}
