package server

import (
	"context"
	"errors"
	"testing"
)

type fakeHealthCheck struct{ err error }

func (f *fakeHealthCheck) HealthCheck(context.Context) error { return f.err }

type fakePingable struct {
	err   error
	calls int
}

func (f *fakePingable) Ping(context.Context) error {
	f.calls++
	return f.err
}

func TestLLMPinger(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")

	cases := []struct {
		name          string
		hc            *fakeHealthCheck
		fallbackErr   error
		wantErr       bool
		wantFallbacks int
	}{
		{name: "health check ok", hc: &fakeHealthCheck{}, wantFallbacks: 0},
		{name: "health check fails", hc: &fakeHealthCheck{err: down}, wantErr: true, wantFallbacks: 0},
		{name: "fallback ok", wantFallbacks: 1},
		{name: "fallback fails", fallbackErr: down, wantErr: true, wantFallbacks: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakePingable{err: tc.fallbackErr}
			var p *LLMPinger
			if tc.hc != nil {
				p = NewLLMPinger(fb, tc.hc, "ollama")
			} else {
				p = NewLLMPinger(fb, nil, "gemini")
			}

			err := p.Ping(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
			if fb.calls != tc.wantFallbacks {
				t.Errorf("fallback calls: expected %d, got %d", tc.wantFallbacks, fb.calls)
			}
		})
	}
}

func TestNewStorePinger(t *testing.T) {
	t.Parallel()

	if p := NewStorePinger("memory", struct{}{}); p != nil {
		t.Errorf("expected nil pinger for a store without Ping, got %T", p)
	}

	store := &fakePingable{err: errors.New("database is locked")}
	p := NewStorePinger("sqlite", store)
	if p == nil {
		t.Fatal("expected a pinger for a store with Ping")
	}
	if p.Name() != "sqlite" {
		t.Errorf("Name(): expected sqlite, got %q", p.Name())
	}
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected the store error to surface")
	}
}

func TestMultiPinger_ReportsEveryFailure(t *testing.T) {
	t.Parallel()

	m := NewMultiPinger(
		&fakePinger{name: "sqlite"},
		&fakePinger{name: "redis", err: errors.New("no route")},
		&fakePinger{name: "llm", err: errors.New("timeout")},
	)
	err := m.Ping(context.Background())
	if err == nil || err.Error() != "redis: no route\nllm: timeout" {
		t.Errorf("expected redis and llm failures in order, got %v", err)
	}
	if err := NewMultiPinger(&fakePinger{name: "sqlite"}).Ping(context.Background()); err != nil {
		t.Errorf("all healthy: expected nil, got %v", err)
	}
}
