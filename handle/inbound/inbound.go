// Package inbound simulates inbound messages by firing webhook deliveries that
// may be duplicated or arrive out of order.
package inbound

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrkagelui/metamock/apperr"
	"github.com/mrkagelui/metamock/chance"
	"github.com/mrkagelui/metamock/sim"
)

const (
	// IDPrefix starts every generated event ID.
	IDPrefix = "evt_"
	// FuturePrefix marks the text of the event sent ahead of its time.
	FuturePrefix = "[Future Message] "
	// FutureShift is how far the future event's timestamp is moved ahead.
	FutureShift = time.Minute
)

// Request asks for one simulated inbound message.
type Request struct {
	EventID    string `json:"eventId"`
	Channel    string `json:"channel"`
	From       string `json:"from"`
	Text       string `json:"text"`
	Duplicate  bool   `json:"duplicate"`
	OutOfOrder bool   `json:"outOfOrder"`
	WebhookURL string `json:"webhookUrl"`
}

// Event is the webhook payload.
type Event struct {
	EventID   string    `json:"eventId"`
	Channel   string    `json:"channel"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Simulation reports which anomalies were applied.
type Simulation struct {
	Duplicate  bool `json:"duplicate"`
	OutOfOrder bool `json:"outOfOrder"`
}

// Result acknowledges an accepted inbound simulation.
type Result struct {
	EventID    string     `json:"eventId"`
	Timestamp  time.Time  `json:"timestamp"`
	Simulation Simulation `json:"simulation"`
}

// Stagger holds the upper bounds of the random wait before each kind of delivery.
type Stagger struct {
	Future     time.Duration
	Delayed    time.Duration // canonical event when sent out of order
	Duplicate  time.Duration
	Triplicate time.Duration
}

// DefaultStagger spreads deliveries over up to 1.5s.
var DefaultStagger = Stagger{
	Future:     0,
	Delayed:    time.Second,
	Duplicate:  500 * time.Millisecond,
	Triplicate: 1500 * time.Millisecond,
}

// Dispatcher contains all it needs to simulate inbound messages.
type Dispatcher struct {
	cfg        *sim.Config
	lg         *slog.Logger
	client     *http.Client
	webhookURL string
	now        func() time.Time
	wg         sync.WaitGroup

	// Stagger bounds the wait before each delivery.
	Stagger Stagger
	// TriplicateRate is the chance a duplicated event is delivered a third time.
	TriplicateRate float64
}

// NewDispatcher returns a *Dispatcher posting to webhookURL unless a request
// overrides it. Each delivery is bounded by timeout.
func NewDispatcher(cfg *sim.Config, lg *slog.Logger, webhookURL string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		cfg:            cfg,
		lg:             lg,
		client:         &http.Client{Timeout: timeout},
		webhookURL:     webhookURL,
		now:            time.Now,
		Stagger:        DefaultStagger,
		TriplicateRate: 0.3,
	}
}

// Simulate validates req and schedules its webhook deliveries. It returns
// without waiting for any of them.
func (d *Dispatcher) Simulate(_ context.Context, req Request) (Result, error) {
	if req.Channel == "" || req.From == "" || req.Text == "" {
		return Result{}, apperr.Invalid("Missing required fields: channel, from, text")
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = newEventID()
	}
	url := req.WebhookURL
	if url == "" {
		url = d.webhookURL
	}
	now := d.now().UTC().Truncate(time.Millisecond)
	ev := Event{
		EventID:   eventID,
		Channel:   req.Channel,
		From:      req.From,
		Text:      req.Text,
		Timestamp: now,
	}

	s := d.cfg.Get()
	dup := req.Duplicate || chance.Decide(s.DuplicateRate)
	ooo := req.OutOfOrder || chance.Decide(s.OutOfOrderRate)

	lg := d.lg.With(slog.String("event_id", eventID), slog.String("webhook_url", url))

	if ooo {
		lg.Info("simulating out-of-order delivery")
		future := Event{
			EventID:   newEventID(),
			Channel:   req.Channel,
			From:      req.From,
			Text:      FuturePrefix + req.Text,
			Timestamp: now.Add(FutureShift),
		}
		d.dispatch(lg, url, future, d.Stagger.Future)
		d.dispatch(lg, url, ev, d.Stagger.Delayed)
	} else {
		d.dispatch(lg, url, ev, 0)
	}

	if dup {
		lg.Info("simulating duplicate delivery")
		d.dispatch(lg, url, ev, d.Stagger.Duplicate)
		if chance.Decide(d.TriplicateRate) {
			d.dispatch(lg, url, ev, d.Stagger.Triplicate)
		}
	}

	return Result{
		EventID:   eventID,
		Timestamp: now,
		Simulation: Simulation{
			Duplicate:  dup,
			OutOfOrder: ooo,
		},
	}, nil
}

// dispatch delivers ev in its own goroutine after a random wait below maxDelay.
// The goroutine outlives the request that started it.
func (d *Dispatcher) dispatch(lg *slog.Logger, url string, ev Event, maxDelay time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		_ = chance.Sleep(ctx, maxDelay) // background context is never canceled
		d.deliver(ctx, lg, url, ev)
	}()
}

// Wait blocks until every scheduled delivery has finished or ctx is done.
// It does not cancel deliveries.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newEventID() string {
	return IDPrefix + uuid.NewString()
}
