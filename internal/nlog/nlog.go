// Package nlog is a minimal stand-in for aistore's internal nlog package:
// leveled, low-overhead logging with a verbosity gate checked before any
// formatting cost is paid.
package nlog

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.Lmicroseconds)

// Verbosity is the global log level; callers gate expensive call sites with
// FastV before formatting arguments, mirroring cmn.Rom.FastV in the teacher.
var Verbosity int32

// FastV reports whether a log statement at the given level for the given
// module should fire. The module argument exists for call-site parity with
// the teacher's per-module verbosity; this repo has one global level.
func FastV(level int32, _ string) bool { return Verbosity >= level }

func Infoln(v ...any)                 { std.Println(v...) }
func Infof(format string, v ...any)   { std.Printf(format, v...) }
func Warningln(v ...any)              { std.Println(append([]any{"WARNING:"}, v...)...) }
func Warningf(format string, v ...any) { std.Printf("WARNING: "+format, v...) }
func Errorln(v ...any)                { std.Println(append([]any{"ERROR:"}, v...)...) }
func Errorf(format string, v ...any)  { std.Printf("ERROR: "+format, v...) }
