package turn

import (
	"context"
	"testing"
	"time"
)

func TestWSClient_OnText_InvokesHandler(t *testing.T) {
	fake := NewFakeSocket()
	c := NewWSClient(fake)
	c.OnText(func(s string) {
		if s != "hello" {
			t.Fatalf("unexpected: %s", s)
		}
	})
	fake.EmitText("hello")
}

func TestWSClient_RunReturnsNilOnClose(t *testing.T) {
	fake := NewFakeSocket()
	c := NewWSClient(fake)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	_ = fake.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after close")
	}
}

func TestFakeSocket_RecordsWrites(t *testing.T) {
	fake := NewFakeSocket()
	seen := ""
	fake.OnWrite(func(s string) { seen = s })
	if err := NewWSClient(fake).Send(context.Background(), "frame"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := fake.Written(); len(got) != 1 || got[0] != "frame" {
		t.Fatalf("unexpected writes: %#v", got)
	}
	if seen != "frame" {
		t.Fatalf("write hook not invoked, got %q", seen)
	}
}
