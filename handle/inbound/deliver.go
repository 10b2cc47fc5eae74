package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
)

// deliver posts ev to url once. Failures are logged and never retried.
func (d *Dispatcher) deliver(ctx context.Context, lg *slog.Logger, url string, ev Event) {
	lg = lg.With(slog.String("delivery_event_id", ev.EventID))

	err := d.post(ctx, url, ev)
	var dnsErr *net.DNSError
	switch {
	case err == nil:
		lg.Info("webhook sent")
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		// nobody is listening, e.g. running without a consumer.
		lg.Info("webhook skipped, receiver unavailable", slog.String("err", err.Error()))
	default:
		lg.Error("webhook failed", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver responded %d", resp.StatusCode)
	}
	return nil
}
