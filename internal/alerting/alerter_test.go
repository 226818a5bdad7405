package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityHigh, "HIGH"},
		{SeverityCritical, "CRITICAL"},
		{Severity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []any
		want   string
	}{
		{"empty fields", nil, ""},
		{"single field", []any{"symbol", "BTCUSDT"}, "• symbol: BTCUSDT"},
		{"multiple fields", []any{"order_id", "100001", "levels", 5}, "• order_id: 100001\n• levels: 5"},
		{"odd number of fields", []any{"symbol", "BTCUSDT", "orphan"}, "• symbol: BTCUSDT"},
		{"non-string key", []any{42, "x", "side", "BUY"}, "• side: BUY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFields(tt.fields...); got != tt.want {
				t.Errorf("FormatFields() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventSeverity(t *testing.T) {
	tests := []struct {
		event Event
		want  Severity
	}{
		{EventStrategyAborted, SeverityCritical},
		{EventCredentialFailure, SeverityCritical},
		{EventOCOMonitorFailed, SeverityHigh},
		{EventCancelFailed, SeverityHigh},
		{EventOCOStopLoss, SeverityWarning},
		{EventTWAPStopped, SeverityWarning},
		{EventOCOTakeProfit, SeverityInfo},
		{EventGridFill, SeverityInfo},
		{Event("unknown"), SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			if got := EventSeverity(tt.event); got != tt.want {
				t.Errorf("EventSeverity(%s) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	if err := Send(ctx, nil, EventGridFill, "ignored"); err != nil {
		t.Errorf("Send(nil) error = %v", err)
	}

	mock := NewMockAlerter()
	if err := Send(ctx, mock, EventOCOStopLoss, "stop loss hit", "order_id", "7"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	alerts := mock.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != SeverityWarning {
		t.Errorf("severity = %v, want WARNING", alerts[0].Severity)
	}
	if alerts[0].Event() != EventOCOStopLoss {
		t.Errorf("event = %q, want %q", alerts[0].Event(), EventOCOStopLoss)
	}
	if !mock.HasEvent(EventOCOStopLoss) || mock.HasEvent(EventGridFill) {
		t.Error("HasEvent() mismatch")
	}
	if !mock.HasAlertContaining("stop loss") {
		t.Error("expected alert containing 'stop loss'")
	}
}

func TestConsoleAlerter(t *testing.T) {
	alerter := NewConsoleAlerter(nil)

	if alerter.Name() != "console" {
		t.Errorf("expected name 'console', got %q", alerter.Name())
	}
	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityHigh, SeverityCritical} {
		if err := alerter.Alert(context.Background(), sev, "test", "k", "v"); err != nil {
			t.Errorf("Alert(%s) error = %v", sev, err)
		}
	}
}

func TestMultiAlerter(t *testing.T) {
	mock1 := NewMockAlerter()
	mock2 := NewMockAlerter()
	multi := NewMultiAlerter(nil, mock1, mock2)

	if err := multi.Alert(context.Background(), SeverityWarning, "broadcast"); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}
	if mock1.Count() != 1 || mock2.Count() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", mock1.Count(), mock2.Count())
	}

	failing := NewMockAlerter()
	boom := errors.New("boom")
	failing.FailWith(boom)
	multi.AddAlerter(failing)
	if multi.Len() != 3 {
		t.Errorf("Len() = %d, want 3", multi.Len())
	}

	err := multi.Alert(context.Background(), SeverityHigh, "another")
	if !errors.Is(err, boom) {
		t.Errorf("Alert() error = %v, want boom", err)
	}
	if mock1.Count() != 2 {
		t.Errorf("healthy channel should still receive, count = %d", mock1.Count())
	}
}

func TestMultiAlerter_Route(t *testing.T) {
	all := NewMockAlerter()
	urgent := NewMockAlerter()
	multi := NewMultiAlerter(nil)
	multi.AddAlerter(all)
	multi.Route(urgent, SeverityHigh)

	ctx := context.Background()
	_ = multi.Alert(ctx, SeverityInfo, "grid fill")
	_ = multi.Alert(ctx, SeverityCritical, "strategy aborted")

	if all.Count() != 2 {
		t.Errorf("all.Count() = %d, want 2", all.Count())
	}
	if urgent.Count() != 1 || !urgent.HasAlertContaining("aborted") {
		t.Errorf("urgent channel got %d alerts, want only the critical one", urgent.Count())
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"WARNING", SeverityWarning, false},
		{"High", SeverityHigh, false},
		{"critical", SeverityCritical, false},
		{"loud", SeverityInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTelegramAlerter(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	alerter := NewTelegramAlerter(TelegramConfig{BotToken: "token", ChatID: "42", APIBase: srv.URL})
	if err := alerter.Alert(context.Background(), SeverityCritical, "grid <aborted>", "symbol", "BTCUSDT"); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}

	if got.ChatID != "42" || got.ParseMode != "HTML" {
		t.Errorf("message = %+v", got)
	}
	if !strings.Contains(got.Text, "grid &lt;aborted&gt;") {
		t.Errorf("text not escaped: %q", got.Text)
	}
	if !strings.Contains(got.Text, "symbol: BTCUSDT") {
		t.Errorf("text missing fields: %q", got.Text)
	}
}

func TestTelegramAlerter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	alerter := NewTelegramAlerter(TelegramConfig{BotToken: "token", ChatID: "0", APIBase: srv.URL})
	err := alerter.Alert(context.Background(), SeverityInfo, "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("Alert() error = %v, want chat not found", err)
	}
}

func TestTelegramAlerter_RetriesThrottled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 0","parameters":{"retry_after":0}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	alerter := NewTelegramAlerter(TelegramConfig{
		BotToken:      "token",
		ChatID:        "42",
		APIBase:       srv.URL,
		RetryInterval: time.Millisecond,
	})
	if err := alerter.Alert(context.Background(), SeverityHigh, "grid fill"); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestTelegramAlerter_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
	}))
	defer srv.Close()

	alerter := NewTelegramAlerter(TelegramConfig{
		BotToken:      "token",
		ChatID:        "42",
		APIBase:       srv.URL,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})
	err := alerter.Alert(context.Background(), SeverityInfo, "hello")
	if err == nil || !strings.Contains(err.Error(), "Too Many Requests") {
		t.Errorf("Alert() error = %v, want throttling error", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
