package tree

import (
	"errors"

	"github.com/Drachenfrucht1/wait-free-tree/lib/infra"
)

// Sentinel errors for the two error categories mutating calls can raise.
// They are wrapped with a call-stack via infra.ErrorStack so xlog's
// ErrorStack sinks render file:line for every frame.
var (
	// ErrInvalidArgument marks a call whose argument violates the data
	// model directly: inserting the zero sentinel key.
	ErrInvalidArgument = errors.New("tree: invalid argument")

	// ErrProtocolMisuse marks a call that violates the engine's
	// concurrency contract rather than its data model: a tid outside
	// [0, P).
	ErrProtocolMisuse = errors.New("tree: protocol misuse")
)

func invalidArgument(msg string) infra.ErrorStack {
	return infra.WrapErrorStackWithMessage(ErrInvalidArgument, msg)
}

func protocolMisuse(msg string) infra.ErrorStack {
	return infra.WrapErrorStackWithMessage(ErrProtocolMisuse, msg)
}
