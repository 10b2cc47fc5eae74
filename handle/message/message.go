// Package message accepts outbound messages the way a flaky provider would.
package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mrkagelui/metamock/apperr"
	"github.com/mrkagelui/metamock/chance"
	"github.com/mrkagelui/metamock/sim"
	"github.com/mrkagelui/metamock/store"
)

// IDPrefix starts every provider message ID.
const IDPrefix = "msg_"

// Request is an outbound send request.
type Request struct {
	Channel         string `json:"channel"`
	To              string `json:"to"`
	Text            string `json:"text"`
	ClientMessageID string `json:"clientMessageId"`
}

// Receipt acknowledges an accepted message.
type Receipt struct {
	ProviderMessageID string    `json:"providerMessageId"`
	Timestamp         time.Time `json:"timestamp"`
}

// Messenger contains necessary handle to accept messages.
type Messenger struct {
	cfg *sim.Config
	st  *store.Store
	lg  *slog.Logger
	now func() time.Time
}

// NewMessenger returns a *Messenger.
func NewMessenger(cfg *sim.Config, st *store.Store, lg *slog.Logger) *Messenger {
	return &Messenger{
		cfg: cfg,
		st:  st,
		lg:  lg,
		now: time.Now,
	}
}

// Send validates req, waits a random latency and then either fails with a
// *apperr.ProviderError or stores the message as delivered.
func (m *Messenger) Send(ctx context.Context, req Request) (Receipt, error) {
	if req.Channel == "" || req.To == "" || req.Text == "" {
		return Receipt{}, apperr.Invalid("Missing required fields: channel, to, text")
	}
	ch := store.Channel(req.Channel)
	if !ch.Valid() {
		return Receipt{}, apperr.Invalid(`Invalid channel. Must be "whatsapp" or "instagram"`)
	}

	// latency applies to failed requests too.
	if err := chance.Sleep(ctx, m.cfg.Get().DelayMax()); err != nil {
		return Receipt{}, fmt.Errorf("simulating latency: %w", err)
	}

	if chance.Decide(m.cfg.Get().FailureRate) {
		code := chance.FailureCode()
		m.lg.Info("simulating failure", slog.Int("code", code), slog.String("to", req.To))
		return Receipt{}, &apperr.ProviderError{Code: code, Message: chance.ErrorMessage(code)}
	}

	r := store.Record{
		ProviderMessageID: IDPrefix + uuid.NewString(),
		ClientMessageID:   req.ClientMessageID,
		Channel:           ch,
		To:                req.To,
		Text:              req.Text,
		Status:            store.Delivered,
		Timestamp:         m.now().UTC().Truncate(time.Millisecond),
	}
	m.st.Put(r)
	m.lg.Info("message sent", slog.String("provider_message_id", r.ProviderMessageID), slog.String("channel", string(ch)))

	return Receipt{ProviderMessageID: r.ProviderMessageID, Timestamp: r.Timestamp}, nil
}
