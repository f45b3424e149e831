package nats_test

import (
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-cqrs/adapters/nats"
	berr "github.com/next-trace/scg-cqrs/contract/errors"
)

func TestNewWithNATS_EmptyURL(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{})
	if err == nil {
		t.Fatalf("expected error")
	}

	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}

func TestNewWithNATS_Unreachable(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{URL: "nats://127.0.0.1:1", ConnTimeout: 200 * time.Millisecond})
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}
