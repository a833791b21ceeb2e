package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCountersAppearInScrape(t *testing.T) {
	m := New()
	m.ObserveEmit("contact.created")
	m.ObserveEmit("contact.created")
	m.ObserveDelivery()
	m.ObserveSubscribers(1)
	m.ObserveClose(activity.CloseReasonOverflow)
	m.ObserveWrite(time.Millisecond, 128)
	m.ObserveBatchCommit(time.Millisecond, 1, 64)

	body := scrape(t, m)
	for _, want := range []string{
		`easemail_activity_events_emitted_total{type="contact.created"} 2`,
		`easemail_activity_events_delivered_total 1`,
		`easemail_activity_subscriptions_closed_total{reason="overflow"} 1`,
		`easemail_activity_subscriptions_active 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q\n%s", want, body)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	h := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	body := scrape(t, m)
	if !strings.Contains(body, `easemail_http_requests_total{method="GET",path="/v1/activity",status="204"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ObserveDelivery()
	if strings.Contains(scrape(t, b), "easemail_activity_events_delivered_total 1") {
		t.Fatalf("registries not isolated")
	}
}
