package infra

import (
	"errors"
	"fmt"
	"io"
	"runtime"
)

// References:
// https://github.com/pkg/errors/blob/master/errors.go

// ErrorStack is an error that carries the call stack at the point it was
// created or wrapped, so log sinks can render "%+v" and get file:line for
// every frame instead of just the message.
type ErrorStack interface {
	error
	Unwrap() error
	StackTrace() []Frame
}

type errorStack struct {
	msg   string
	cause error
	stack []Frame
}

func callers(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = Frame(pcs[i])
	}
	return frames
}

func (e *errorStack) Error() string {
	if e.cause != nil {
		if e.msg == "" {
			return e.cause.Error()
		}
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *errorStack) Unwrap() error {
	return e.cause
}

func (e *errorStack) StackTrace() []Frame {
	return e.stack
}

func (e *errorStack) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, e.Error())
			for _, f := range e.stack {
				_, _ = io.WriteString(s, "\n")
				f.Format(s, 'v')
			}
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// NewErrorStack builds a fresh ErrorStack rooted at the caller.
func NewErrorStack(msg string) ErrorStack {
	return &errorStack{msg: msg, stack: callers(3)}
}

// WrapErrorStack attaches the current call stack to err, or returns nil if
// err is nil. If err is already an ErrorStack its stack is preserved and
// extended, not replaced.
func WrapErrorStack(err error) ErrorStack {
	if err == nil {
		return nil
	}
	var existing ErrorStack
	if errors.As(err, &existing) {
		return existing
	}
	return &errorStack{cause: err, stack: callers(3)}
}

// WrapErrorStackWithMessage attaches msg and the current call stack to err.
func WrapErrorStackWithMessage(err error, msg string) ErrorStack {
	if err == nil {
		return NewErrorStack(msg)
	}
	return &errorStack{msg: msg, cause: err, stack: callers(3)}
}
