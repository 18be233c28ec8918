package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(InstrumentHandler)
	r.HandleFunc("/advertisement/notesheet/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/advertisement/notesheet/{id}", "404"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/advertisement/notesheet/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/advertisement/notesheet/{id}", "404"))
	assert.Equal(t, before+1, after)
}

func TestRecordTransitionOutcome(t *testing.T) {
	before := testutil.ToFloat64(workflowTransitions.WithLabelValues("test_op", "failure"))
	RecordTransition("test_op", errors.New("boom"))
	RecordTransition("test_op", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(workflowTransitions.WithLabelValues("test_op", "failure")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(workflowTransitions.WithLabelValues("test_op", "success")), 1.0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordDelivery("release-order", "delivered")
	SetQueueDepth(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "dipr_release_orders_notification_deliveries_total"))
	assert.True(t, strings.Contains(body, "dipr_release_orders_notification_queue_depth 3"))
}
