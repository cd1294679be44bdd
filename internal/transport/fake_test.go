package transport

import (
	"context"
	"testing"
	"time"
)

func TestFakeReplaysBuffersInOrder(t *testing.T) {
	f := NewFake([]byte{1, 2}, []byte{3, 4, 5})
	buf := make([]byte, 8)

	n, err := f.ReadInto(context.Background(), buf)
	if err != nil || n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("unexpected first read: n=%d err=%v buf=%v", n, err, buf[:n])
	}

	n, err = f.ReadInto(context.Background(), buf)
	if err != nil || n != 3 {
		t.Fatalf("unexpected second read: n=%d err=%v", n, err)
	}
}

func TestFakeReadBlocksThenUnblocksOnPush(t *testing.T) {
	f := NewFake()
	buf := make([]byte, 4)
	resultCh := make(chan int, 1)

	go func() {
		n, _ := f.ReadInto(context.Background(), buf)
		resultCh <- n
	}()

	time.Sleep(10 * time.Millisecond)
	f.Push([]byte{9, 9})

	select {
	case n := <-resultCh:
		if n != 2 {
			t.Fatalf("expected 2 bytes, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadInto did not unblock after Push")
	}
}

func TestFakeReadIntoRespectsContextCancel(t *testing.T) {
	f := NewFake()
	buf := make([]byte, 4)
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan error, 1)
	go func() {
		_, err := f.ReadInto(ctx, buf)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected context cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadInto did not unblock after context cancel")
	}
}

func TestFakeCloseUnblocksReader(t *testing.T) {
	f := NewFake()
	buf := make([]byte, 4)
	resultCh := make(chan error, 1)

	go func() {
		_, err := f.ReadInto(context.Background(), buf)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	f.Close()

	select {
	case err := <-resultCh:
		if err != ErrFakeClosed {
			t.Fatalf("expected ErrFakeClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadInto did not unblock after Close")
	}
}
