package oops

import (
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

// Error is the error type used throughout the archiver. It carries a short
// message describing what we were trying to do, the underlying error (if
// any), and the call stack at the point the error was created.
type Error struct {
	Message string
	Wrapped error
	Stack   CallStack
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("file", f.File).
		Int("line", f.Line).
		Str("function", f.Function)
}

// ZerologStackMarshaler should be installed as zerolog.ErrorStackMarshaler so
// that .Stack() on a log event prints the trace captured by New.
var ZerologStackMarshaler = func(err error) interface{} {
	var asOops *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			asOops = e
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if asOops != nil {
		return asOops.Stack
	}
	return nil
}

// Trace captures the call stack of whoever called Trace.
func Trace() CallStack {
	return captureStack(1)
}

func captureStack(skip int) CallStack {
	// Element 0 of the trace is captureStack itself.
	trace := stack.Trace().TrimRuntime()
	if len(trace) > skip+1 {
		trace = trace[skip+1:]
	} else {
		trace = nil
	}
	frames := make(CallStack, len(trace))
	for i, call := range trace {
		callFrame := call.Frame()
		frames[i] = StackFrame{
			File:     callFrame.File,
			Line:     callFrame.Line,
			Function: callFrame.Function,
		}
	}
	return frames
}

// New wraps an error (which may be nil) with a formatted message and the
// current stack.
func New(wrapped error, format string, args ...interface{}) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   captureStack(1),
	}
}
