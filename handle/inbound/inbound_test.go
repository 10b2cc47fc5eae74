package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrkagelui/metamock/apperr"
	"github.com/mrkagelui/metamock/sim"
)

// receiver records every webhook it is sent.
type receiver struct {
	mu     sync.Mutex
	events []Event
	srv    *httptest.Server
}

func newReceiver(t *testing.T) *receiver {
	t.Helper()

	rc := &receiver{}
	rc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rc.mu.Lock()
		rc.events = append(rc.events, ev)
		rc.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rc.srv.Close)
	return rc
}

func (rc *receiver) received() []Event {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Event(nil), rc.events...)
}

var fastStagger = Stagger{
	Future:     0,
	Delayed:    20 * time.Millisecond,
	Duplicate:  10 * time.Millisecond,
	Triplicate: 30 * time.Millisecond,
}

func newDispatcher(s sim.Settings, url string) *Dispatcher {
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(sim.NewConfig(s), lg, url, time.Second)
	d.Stagger = fastStagger
	return d
}

func waitAll(t *testing.T, d *Dispatcher) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("waiting for deliveries: %v", err)
	}
}

func TestSimulate_Validation(t *testing.T) {
	t.Parallel()

	d := newDispatcher(sim.Settings{}, "http://127.0.0.1:1")

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing_channel", req: Request{From: "+1555", Text: "hi"}},
		{name: "missing_from", req: Request{Channel: "whatsapp", Text: "hi"}},
		{name: "missing_text", req: Request{Channel: "whatsapp", From: "+1555"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := d.Simulate(context.Background(), tt.req)
			if !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if err.Error() != "Missing required fields: channel, from, text" {
				t.Fatalf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestSimulate_Normal(t *testing.T) {
	t.Parallel()

	rc := newReceiver(t)
	d := newDispatcher(sim.Settings{}, rc.srv.URL)

	res, err := d.Simulate(context.Background(), Request{EventID: "evt_given", Channel: "whatsapp", From: "+1555", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitAll(t, d)

	if res.EventID != "evt_given" {
		t.Fatalf("expected caller event id, got %q", res.EventID)
	}
	if res.Simulation.Duplicate || res.Simulation.OutOfOrder {
		t.Fatalf("expected no anomalies, got %+v", res.Simulation)
	}

	got := rc.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	want := Event{EventID: "evt_given", Channel: "whatsapp", From: "+1555", Text: "hi", Timestamp: res.Timestamp}
	if !got[0].Timestamp.Equal(want.Timestamp) || got[0].EventID != want.EventID || got[0].Text != want.Text || got[0].From != want.From {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
}

func TestSimulate_GeneratesEventID(t *testing.T) {
	t.Parallel()

	rc := newReceiver(t)
	d := newDispatcher(sim.Settings{}, rc.srv.URL)

	res, err := d.Simulate(context.Background(), Request{Channel: "instagram", From: "@someone", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitAll(t, d)

	if !strings.HasPrefix(res.EventID, IDPrefix) {
		t.Fatalf("expected prefix %q, got %q", IDPrefix, res.EventID)
	}
	if got := rc.received(); len(got) != 1 || got[0].EventID != res.EventID {
		t.Fatalf("expected one delivery of %s, got %+v", res.EventID, got)
	}
}

func TestSimulate_Duplicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		triplicate float64
		want       int
	}{
		{name: "twice", triplicate: 0, want: 2},
		{name: "three_times", triplicate: 1, want: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := newReceiver(t)
			d := newDispatcher(sim.Settings{DuplicateRate: 1}, rc.srv.URL)
			d.TriplicateRate = tt.triplicate

			res, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			waitAll(t, d)

			if !res.Simulation.Duplicate || res.Simulation.OutOfOrder {
				t.Fatalf("unexpected simulation %+v", res.Simulation)
			}
			got := rc.received()
			if len(got) != tt.want {
				t.Fatalf("expected %d deliveries, got %d", tt.want, len(got))
			}
			for _, ev := range got {
				if ev.EventID != res.EventID || ev.Text != "hi" || !ev.Timestamp.Equal(res.Timestamp) {
					t.Fatalf("expected copy of canonical event, got %+v", ev)
				}
			}
		})
	}
}

func TestSimulate_DuplicateRateAlwaysTwoOrThree(t *testing.T) {
	t.Parallel()

	rc := newReceiver(t)
	d := newDispatcher(sim.Settings{DuplicateRate: 1}, rc.srv.URL)

	ids := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids[res.EventID] = true
	}
	waitAll(t, d)

	counts := map[string]int{}
	for _, ev := range rc.received() {
		if !ids[ev.EventID] {
			t.Fatalf("unexpected event id %s", ev.EventID)
		}
		counts[ev.EventID]++
	}
	for id := range ids {
		if c := counts[id]; c != 2 && c != 3 {
			t.Fatalf("event %s delivered %d times", id, c)
		}
	}
}

func TestSimulate_OutOfOrder(t *testing.T) {
	t.Parallel()

	rc := newReceiver(t)
	d := newDispatcher(sim.Settings{OutOfOrderRate: 1}, rc.srv.URL)

	res, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitAll(t, d)

	if !res.Simulation.OutOfOrder || res.Simulation.Duplicate {
		t.Fatalf("unexpected simulation %+v", res.Simulation)
	}

	var canonical, future []Event
	for _, ev := range rc.received() {
		if ev.EventID == res.EventID {
			canonical = append(canonical, ev)
		} else {
			future = append(future, ev)
		}
	}
	if len(canonical) != 1 {
		t.Fatalf("expected 1 canonical delivery, got %d", len(canonical))
	}
	if len(future) != 1 {
		t.Fatalf("expected 1 future delivery, got %d", len(future))
	}
	f := future[0]
	if !strings.HasPrefix(f.EventID, IDPrefix) {
		t.Fatalf("expected generated future id, got %q", f.EventID)
	}
	if f.Text != FuturePrefix+"hi" {
		t.Fatalf("expected future marker, got %q", f.Text)
	}
	if shift := f.Timestamp.Sub(res.Timestamp); shift != FutureShift {
		t.Fatalf("expected future shift %v, got %v", FutureShift, shift)
	}
}

func TestSimulate_Overrides(t *testing.T) {
	t.Parallel()

	rc := newReceiver(t)
	d := newDispatcher(sim.Settings{}, "http://127.0.0.1:1")
	d.TriplicateRate = 0

	res, err := d.Simulate(context.Background(), Request{
		Channel:    "whatsapp",
		From:       "+1555",
		Text:       "hi",
		Duplicate:  true,
		OutOfOrder: true,
		WebhookURL: rc.srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitAll(t, d)

	if !res.Simulation.Duplicate || !res.Simulation.OutOfOrder {
		t.Fatalf("expected both anomalies, got %+v", res.Simulation)
	}
	// future + delayed canonical + duplicate
	if got := rc.received(); len(got) != 3 {
		t.Fatalf("expected 3 deliveries at the override url, got %d", len(got))
	}
}

func TestSimulate_DoesNotWaitForDelivery(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := newDispatcher(sim.Settings{}, srv.URL)

	done := make(chan error, 1)
	go func() {
		_, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("simulate blocked on delivery")
	}

	close(release)
	waitAll(t, d)
}

func TestSimulate_DeliveryFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name string
		url  string
	}{
		{name: "receiver_error", url: srv.URL},
		{name: "unreachable", url: "http://127.0.0.1:1/webhooks"},
		{name: "malformed_url", url: "://nope"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newDispatcher(sim.Settings{DuplicateRate: 1, OutOfOrderRate: 1}, tt.url)
			res, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.EventID == "" {
				t.Fatal("expected event id")
			}
			waitAll(t, d)
		})
	}
}

func TestWait_ContextDone(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	d := newDispatcher(sim.Settings{}, srv.URL)
	if _, err := d.Simulate(context.Background(), Request{Channel: "whatsapp", From: "+1555", Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}
