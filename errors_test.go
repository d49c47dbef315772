package chunkstore_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rerun-io/chunkstore"
)

func TestError_Error(t *testing.T) {
	cases := []struct {
		name string
		err  *chunkstore.Error
		want string
	}{
		{
			name: "code and message",
			err:  &chunkstore.Error{Code: chunkstore.EInvalid, Msg: "chunk column lengths differ"},
			want: "<invalid> chunk column lengths differ",
		},
		{
			name: "op prefixes the chain",
			err: &chunkstore.Error{
				Op:  "store.Insert",
				Err: &chunkstore.Error{Code: chunkstore.EInvalid, Msg: "row ids not strictly increasing"},
			},
			want: "store.Insert: <invalid> row ids not strictly increasing",
		},
		{
			name: "wrapped plain error",
			err:  &chunkstore.Error{Op: "cache.Resolve", Err: errors.New("payload truncated")},
			want: "cache.Resolve: payload truncated",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("unexpected message: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	err := &chunkstore.Error{
		Op:  "store.Insert",
		Err: &chunkstore.Error{Code: chunkstore.EConflict, Msg: "timeline redefined"},
	}
	if got, want := chunkstore.ErrorCode(err), chunkstore.EConflict; got != want {
		t.Fatalf("unexpected code: got %q, want %q", got, want)
	}

	if got, want := chunkstore.ErrorCode(errors.New("boom")), chunkstore.EInternal; got != want {
		t.Fatalf("unexpected code for plain error: got %q, want %q", got, want)
	}

	if got := chunkstore.ErrorCode(nil); got != "" {
		t.Fatalf("unexpected code for nil error: got %q", got)
	}

	// Codes survive %w wrapping.
	wrapped := fmt.Errorf("insert failed: %w", err)
	if got, want := chunkstore.ErrorCode(wrapped), chunkstore.EConflict; got != want {
		t.Fatalf("unexpected code through %%w: got %q, want %q", got, want)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &chunkstore.Error{
		Op:  "store.DropTimeRange",
		Err: &chunkstore.Error{Code: chunkstore.ENotFound, Msg: "timeline not registered"},
	}
	if got, want := chunkstore.ErrorMessage(err), "timeline not registered"; got != want {
		t.Fatalf("unexpected message: got %q, want %q", got, want)
	}
	if got, want := chunkstore.ErrorMessage(errors.New("boom")), "An internal error has occurred."; got != want {
		t.Fatalf("unexpected fallback message: got %q, want %q", got, want)
	}
}
