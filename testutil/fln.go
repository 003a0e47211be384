package testutil

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FileLineNumber records where a step of a table driven test was declared so that failures
// point back at the table entry rather than at the test driver.
type FileLineNumber struct {
	File string
	Line int
}

func (fln FileLineNumber) String() string {
	if fln.File == "" || fln.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d: ", filepath.Base(fln.File), fln.Line)
}

// MakeFileLineNumber is meant to be called from a one line helper, usually fln(), in the
// test file; it skips that helper and reports its caller.
func MakeFileLineNumber() FileLineNumber {
	_, fn, ln, ok := runtime.Caller(2)
	if !ok {
		return FileLineNumber{}
	}
	return FileLineNumber{File: fn, Line: ln}
}
