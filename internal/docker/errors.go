package docker

import (
	"context"
	"errors"
	"net"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/client"
)

// Kind classifies a Gateway failure.
type Kind string

const (
	KindConnection Kind = "connection" // daemon unreachable
	KindNotFound   Kind = "not_found"  // referenced container does not exist
	KindConflict   Kind = "conflict"   // action invalid for the container's current state
	KindProtocol   Kind = "protocol"   // response could not be handled
)

// Sentinels for errors.Is matching against a *Error of the same kind.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrProtocol   = &Error{Kind: KindProtocol}
)

// Error is returned by every Gateway operation that fails.
type Error struct {
	Kind Kind
	Op   string // "list containers", "start container", ...
	ID   string // container reference for start/stop, empty otherwise
	Msg  string // user-facing description
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error of the same Kind, so that
// errors.Is(err, ErrConflict) works on any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// KindOf returns the Kind of err, or KindProtocol if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProtocol
}

// Message returns the user-facing description of err without the operation
// prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

// ConnectionError builds a KindConnection error for op. A cause that is
// already a connection error is unwrapped so the message is not repeated.
func ConnectionError(op string, cause error) *Error {
	return connectionError(op, cause)
}

func connectionError(op string, cause error) *Error {
	var e *Error
	if errors.As(cause, &e) && e.Kind == KindConnection && e.Err != nil {
		cause = e.Err
	}
	return &Error{
		Kind: KindConnection,
		Op:   op,
		Msg:  "Cannot connect to the Docker daemon: " + causeText(cause),
		Err:  cause,
	}
}

func notFoundError(op, id string, cause error) *Error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Msg: "No such container: " + id, Err: cause}
}

func conflictError(op, id string, state State, cause error) *Error {
	msg := "Container " + id + " is already running"
	if state == Stopped {
		msg = "Container " + id + " is already stopped"
	}
	return &Error{Kind: KindConflict, Op: op, ID: id, Msg: msg, Err: cause}
}

func protocolError(op string, cause error) *Error {
	return &Error{
		Kind: KindProtocol,
		Op:   op,
		Msg:  "Unexpected response from the Docker daemon: " + causeText(cause),
		Err:  cause,
	}
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// classify maps an SDK error onto the taxonomy. Anything that is neither a
// transport failure nor a recognised daemon answer is a protocol problem.
func classify(op, id string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case isConnectionFailure(err):
		return connectionError(op, err)
	case errdefs.IsNotFound(err):
		return notFoundError(op, id, err)
	case errdefs.IsConflict(err):
		return &Error{Kind: KindConflict, Op: op, ID: id, Msg: "Container " + id + ": " + causeText(err), Err: err}
	}
	// Decode failures (*json.SyntaxError, io.ErrUnexpectedEOF, ...) and
	// unexpected daemon statuses land here.
	return protocolError(op, err)
}

func isConnectionFailure(err error) bool {
	if client.IsErrConnectionFailed(err) {
		return true
	}
	if errdefs.IsUnavailable(err) || errdefs.IsCanceled(err) || errdefs.IsDeadlineExceeded(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
