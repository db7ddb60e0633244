package secretstore

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := New(zap.NewNop())

	token := store.Put("TX-1", map[string]string{"pan": "4111111111111111", "cvv": "123"})
	if token == "" {
		t.Fatal("expected a token")
	}

	payload, ok := store.Get("TX-1", token)
	if !ok {
		t.Fatal("expected payload")
	}
	if payload["pan"] != "4111111111111111" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestGetRejectsWrongToken(t *testing.T) {
	store := New(zap.NewNop())
	store.Put("TX-1", map[string]string{"pan": "4111111111111111"})

	if _, ok := store.Get("TX-1", "wrong-token"); ok {
		t.Fatal("expected miss on token mismatch")
	}
}

func TestPutCopiesPayload(t *testing.T) {
	store := New(zap.NewNop())
	payload := map[string]string{"pan": "4111111111111111"}
	token := store.Put("TX-1", payload)

	payload["pan"] = "mutated"

	stored, ok := store.Get("TX-1", token)
	if !ok {
		t.Fatal("expected payload")
	}
	if stored["pan"] != "4111111111111111" {
		t.Fatal("stored payload should not alias caller's map")
	}
}

func TestForget(t *testing.T) {
	store := New(zap.NewNop())
	token := store.Put("TX-1", map[string]string{"pan": "4111111111111111"})
	store.Forget("TX-1")

	if _, ok := store.Get("TX-1", token); ok {
		t.Fatal("expected miss after forget")
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	store := New(zap.NewNop())
	store.ttl = time.Millisecond
	store.Put("TX-1", map[string]string{"pan": "4111111111111111"})

	removed := store.Sweep(time.Now().Add(time.Second))
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
}
