package metrics

import (
	"math"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/tsanomaly/pkg/detectors"
)

func TestRecorderObserve(t *testing.T) {
	r := NewRecorder()

	r.Observe("ewma", detectors.Record{Value: 1, Mean: 1, Stdev: math.NaN(), Upper: math.NaN(), Lower: math.NaN()})
	r.Observe("ewma", detectors.Record{Value: 2, Mean: 1, Stdev: 1, Upper: 4, Lower: -2})
	r.Observe("ewma", detectors.Record{Value: 9, Mean: 1, Stdev: 1, Upper: 4, Lower: -2, Anomaly: true})
	r.Observe("pewma", detectors.Record{Value: 9, Mean: 1, Stdev: 0.5, Upper: 2.5, Lower: -0.5, Anomaly: true})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.points.WithLabelValues("ewma")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.anomalies.WithLabelValues("ewma")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.bandWidth.WithLabelValues("ewma")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.bandWidth.WithLabelValues("pewma")))
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder()
	r.Observe("ewma", detectors.Record{Value: 9, Upper: 4, Lower: -2, Anomaly: true})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `tsanomaly_anomalies_total{detector="ewma"} 1`)
}
