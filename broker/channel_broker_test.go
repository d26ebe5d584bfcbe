package broker

import (
	"context"
	"testing"
	"time"
)

func TestChannelBrokerPublishAndPop(t *testing.T) {
	b := NewChannelBroker()
	if err := b.Publish(context.Background(), "q1", []byte("hello")); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	out, err := b.BlockingPop(context.Background(), "q1", time.Second)
	if err != nil {
		t.Fatalf("unexpected pop error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("expected 'hello', got %q", out)
	}
}

func TestChannelBrokerPopTimeout(t *testing.T) {
	b := NewChannelBroker()
	_, err := b.BlockingPop(context.Background(), "empty", 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error on empty queue")
	}
}

func TestChannelBrokerIsolatesQueues(t *testing.T) {
	b := NewChannelBroker()
	b.Publish(context.Background(), "a", []byte("a-msg"))
	_, err := b.BlockingPop(context.Background(), "b", 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected queue 'b' to be empty despite a publish to 'a'")
	}
}
