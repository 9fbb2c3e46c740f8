package security

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJourneyCookieRoundTrip(t *testing.T) {
	codec, err := NewJourneyCookieCodec("test-signing-key", time.Hour)
	if err != nil {
		t.Fatalf("init codec: %v", err)
	}

	ids := []uuid.UUID{uuid.New(), uuid.New()}

	value, err := codec.Encode(ids)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := codec.Decode(value)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(ids) {
		t.Fatalf("expected %d ids, got %d", len(ids), len(decoded))
	}
	for i := range ids {
		if decoded[i] != ids[i] {
			t.Fatalf("id %d changed in transit: %s vs %s", i, decoded[i], ids[i])
		}
	}
}

func TestJourneyCookieEmptyValue(t *testing.T) {
	codec, _ := NewJourneyCookieCodec("test-signing-key", time.Hour)

	ids, err := codec.Decode("")
	if err != nil {
		t.Fatalf("an absent cookie is not an error, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected an empty allow-list, got %v", ids)
	}
}

func TestJourneyCookieRejectsTampering(t *testing.T) {
	codec, _ := NewJourneyCookieCodec("test-signing-key", time.Hour)

	value, err := codec.Encode([]uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	tampered := value[:len(value)-2] + "xx"
	if _, err := codec.Decode(tampered); !errors.Is(err, ErrCookieInvalid) {
		t.Fatalf("expected ErrCookieInvalid for a tampered cookie, got %v", err)
	}
}

func TestJourneyCookieRejectsForeignKey(t *testing.T) {
	codec, _ := NewJourneyCookieCodec("test-signing-key", time.Hour)
	other, _ := NewJourneyCookieCodec("another-signing-key", time.Hour)

	value, err := other.Encode([]uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if _, err := codec.Decode(value); !errors.Is(err, ErrCookieInvalid) {
		t.Fatalf("expected ErrCookieInvalid for a foreign signature, got %v", err)
	}
}

func TestJourneyCookieExpires(t *testing.T) {
	codec, _ := NewJourneyCookieCodec("test-signing-key", time.Hour)

	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.WithClock(func() time.Time { return issued })

	value, err := codec.Encode([]uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	codec.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	if _, err := codec.Decode(value); !errors.Is(err, ErrCookieInvalid) {
		t.Fatalf("expected an expired cookie to be rejected, got %v", err)
	}
}

func TestJourneyCookieRequiresKey(t *testing.T) {
	if _, err := NewJourneyCookieCodec("", time.Hour); err == nil {
		t.Fatalf("expected an empty signing key to be rejected")
	}
}
