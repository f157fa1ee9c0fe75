package notifier

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopflow/backend/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventPayload(t *testing.T, event domain.OrderCompletedEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return data
}

func TestHandle(t *testing.T) {
	t.Run("posts a confirmation email", func(t *testing.T) {
		var got emailRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/send" {
				t.Errorf("expected POST /send, got %s %s", r.Method, r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode email request: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		handler := NewEmailHandler(server.URL, server.Client(), testLogger())
		payload := eventPayload(t, domain.OrderCompletedEvent{
			OrderID:    "order-1",
			UserID:     "user-1",
			Email:      "buyer@example.com",
			TotalCents: 4500,
			Timestamp:  time.Now(),
		})

		if err := handler.Handle(t.Context(), payload); err != nil {
			t.Fatalf("handle failed: %v", err)
		}

		if got.To != "buyer@example.com" {
			t.Errorf("expected recipient buyer@example.com, got %q", got.To)
		}
		if got.Subject != "Order order-1 confirmed" {
			t.Errorf("unexpected subject %q", got.Subject)
		}
		if want := "$45.00"; !strings.Contains(got.Body, want) {
			t.Errorf("expected body to mention %s, got %q", want, got.Body)
		}
	})

	t.Run("drops events without an email address", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("email service must not be called")
		}))
		defer server.Close()

		handler := NewEmailHandler(server.URL, server.Client(), testLogger())
		payload := eventPayload(t, domain.OrderCompletedEvent{OrderID: "order-1"})

		if err := handler.Handle(t.Context(), payload); err != nil {
			t.Fatalf("expected event to be dropped without error, got %v", err)
		}
	})

	t.Run("propagates email service failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		handler := NewEmailHandler(server.URL, server.Client(), testLogger())
		payload := eventPayload(t, domain.OrderCompletedEvent{OrderID: "order-1", Email: "buyer@example.com"})

		if err := handler.Handle(t.Context(), payload); err == nil {
			t.Fatal("expected an error when the email service fails")
		}
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		handler := NewEmailHandler("http://unused", http.DefaultClient, testLogger())

		if err := handler.Handle(t.Context(), []byte("{not json")); err == nil {
			t.Fatal("expected an error for a malformed payload")
		}
	})
}
