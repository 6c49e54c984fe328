package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "AutoLP-Chain/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	a := &recordingNotifier{channel: "a"}
	b := &recordingNotifier{channel: "b", err: errors.New("down")}
	d := NewFanout(a, nil, b)

	err := d.Notify(context.Background(), Event{Code: "TX_REVERTED", OperationID: "op-1"})
	if err == nil {
		t.Fatalf("expected joined error from failing channel")
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both channels notified, got %d/%d", len(a.events), len(b.events))
	}
	if got := d.Channels(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected channels %v", got)
	}
}

func TestNilFanoutIsNoop(t *testing.T) {
	var d *FanoutDispatcher
	if err := d.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher must not fail: %v", err)
	}
}

func TestWebhookPostsJSON(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	event := Event{
		Code:        "FALLBACK_FAILED",
		Severity:    xerrors.SeverityCritical,
		OperationID: "op-7",
		Kind:        "WITHDRAW",
		Attempts:    4,
		OccurredAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.OperationID != "op-7" || received.Attempts != 4 || received.Code != "FALLBACK_FAILED" {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestWebhookReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	if err := (LogNotifier{}).Notify(context.Background(), Event{Code: "X"}); err != nil {
		t.Fatalf("log notifier failed: %v", err)
	}
}
