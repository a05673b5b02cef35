package translator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/valpere/chaptran/internal/glossary"
)

type fakeBackend struct {
	calls int
	err   error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Translation: "ok"}, nil
}

func (f *fakeBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []glossary.Candidate{{Term: "Mira", Definition: "protagonist"}}, nil
}

func TestBreaker_PassesThrough(t *testing.T) {
	fb := &fakeBackend{}
	b := NewBreaker(fb, BreakerSettings{}, nil)

	resp, err := b.Translate(context.Background(), Request{Text: "x"})
	if err != nil || resp.Translation != "ok" {
		t.Fatalf("unexpected result %+v, %v", resp, err)
	}
	terms, err := b.ExtractTerms(context.Background(), ExtractRequest{Text: "x"})
	if err != nil || len(terms) != 1 {
		t.Fatalf("unexpected terms %+v, %v", terms, err)
	}
	if b.Name() != "fake" {
		t.Errorf("expected wrapped name, got %q", b.Name())
	}
}

func TestBreaker_OpensOnTransientFailures(t *testing.T) {
	fb := &fakeBackend{err: fmt.Errorf("boom: %w", ErrTransient)}
	b := NewBreaker(fb, BreakerSettings{ConsecutiveFailures: 2, Cooldown: time.Hour}, nil)

	for i := 0; i < 2; i++ {
		if _, err := b.Translate(context.Background(), Request{}); !errors.Is(err, ErrTransient) {
			t.Fatalf("call %d: expected transient error, got %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open circuit, got %v", b.State())
	}

	_, err := b.Translate(context.Background(), Request{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("open circuit must not be retried")
	}
	if fb.calls != 2 {
		t.Errorf("expected backend not to be called while open, got %d calls", fb.calls)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	fb := &fakeBackend{err: errors.New("invalid key")}
	b := NewBreaker(fb, BreakerSettings{ConsecutiveFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		b.Translate(context.Background(), Request{})
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("expected closed circuit, got %v", b.State())
	}
	if fb.calls != 3 {
		t.Errorf("expected every call to reach the backend, got %d", fb.calls)
	}
}
