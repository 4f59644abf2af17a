package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", errdefs.ErrNotFound.WithMessage("No such container: x"), KindNotFound},
		{"conflict", errdefs.ErrConflict.WithMessage("in use"), KindConflict},
		{"unavailable", errdefs.ErrUnavailable, KindConnection},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), KindConnection},
		{"cancelled", context.Canceled, KindConnection},
		{"decode", errors.New("unexpected EOF"), KindProtocol},
		{"server error", errdefs.ErrInternal, KindProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("list containers", "x", tt.err)
			if got.Kind != tt.want {
				t.Errorf("classify(%v).Kind = %q, want %q", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error should wrap its cause")
			}
		})
	}
}

func TestClassify_PassesThroughError(t *testing.T) {
	orig := conflictError("start container", "web", Running, nil)
	wrapped := fmt.Errorf("outer: %w", orig)
	if got := classify("other", "", wrapped); got != orig {
		t.Errorf("classify should return the existing *Error, got %v", got)
	}
}

func TestError_Is(t *testing.T) {
	err := notFoundError("stop container", "ghost", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(notFound, ErrNotFound) = false")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("errors.Is(notFound, ErrConflict) = true")
	}
	if err.Error() != "stop container: No such container: ghost" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindProtocol {
		t.Errorf("KindOf(foreign) = %q, want protocol", got)
	}
	if got := Message(errors.New("boom")); got != "boom" {
		t.Errorf("Message(foreign) = %q", got)
	}
}
