package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/rerun-io/chunkstore/pkg/lifecycle"
)

func TestResource_AcquireAfterClose(t *testing.T) {
	var res lifecycle.Resource
	res.Open()
	res.Close()

	if _, err := res.Acquire(); !errors.Is(err, lifecycle.ErrResourceClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResource_AcquireBeforeOpen(t *testing.T) {
	var res lifecycle.Resource

	if _, err := res.Acquire(); !errors.Is(err, lifecycle.ErrResourceClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResource_CloseWaitsForReferences(t *testing.T) {
	var res lifecycle.Resource
	res.Open()

	ref, err := res.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		res.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned with a reference outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	ref.Release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close never returned after the reference was released")
	}

	// Releasing twice must be harmless.
	ref.Release()
}

func TestResource_Reopen(t *testing.T) {
	var res lifecycle.Resource
	res.Open()
	res.Close()
	res.Open()

	ref, err := res.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	ref.Release()
	res.Close()
}
