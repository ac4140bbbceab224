package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsCheckInsByTier(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckIn("on_time")
	c.RecordCheckIn("on_time")
	c.RecordCheckIn("late")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkIns.WithLabelValues("on_time")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkIns.WithLabelValues("late")))
}

func TestCollector_CreditPointsSplitByDirection(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordCreditChange("check_in", 10)
	c.RecordCreditChange("check_in", -5)
	c.RecordCreditChange("blockchain_checkin", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.creditChanges.WithLabelValues("check_in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.creditChanges.WithLabelValues("blockchain_checkin")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.creditPoints.WithLabelValues("check_in", "gain")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.creditPoints.WithLabelValues("check_in", "loss")))
}

func TestCollector_FeedbackAndMirror(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordFeedback(5)
	c.RecordFeedback(9)
	c.RecordMirror("checkin", "success", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.feedback.WithLabelValues("5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.feedback.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mirrorCalls.WithLabelValues("checkin", "success")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCheckIn("grace")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `ticketchain_checkins_total{tier="grace"} 1`)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordCheckIn("late")
	r.RecordCreditChange("x", 1)
	r.RecordFeedback(3)
	r.RecordMirror("checkin", "failure", time.Second)
}
