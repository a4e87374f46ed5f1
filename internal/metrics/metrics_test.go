package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveTransition(models.Instagram, models.StateSuccess, shared.KindNone)
	m.ObserveTransition(models.Instagram, models.StateSuccess, shared.KindNone)
	if got := testutil.ToFloat64(m.TaskTransitions.WithLabelValues("instagram", "SUCCESS", "")); got != 2 {
		t.Errorf("expected 2 transitions, got %v", got)
	}

	m.ObserveCall(models.TikTok, "profile", shared.KindNone)
	m.ObserveCall(models.TikTok, "profile", shared.KindQuotaExceeded)
	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("tiktok", "profile", "ok")); got != 1 {
		t.Errorf("expected 1 ok call, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("tiktok", "profile", "quota_exceeded")); got != 1 {
		t.Errorf("expected 1 quota call, got %v", got)
	}

	m.SetTaskCounts(map[models.TaskState]int{models.StatePending: 3})
	if got := testutil.ToFloat64(m.TasksByState.WithLabelValues("PENDING")); got != 3 {
		t.Errorf("expected 3 pending, got %v", got)
	}
	if got := testutil.ToFloat64(m.TasksByState.WithLabelValues("FAILURE")); got != 0 {
		t.Errorf("expected 0 failed, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveWait(20 * time.Millisecond)
	m.ObserveNotification(shared.KindQuotaExceeded)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"socialsync_rate_limiter_wait_seconds_count 1",
		`socialsync_admin_notifications_total{kind="quota_exceeded"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
