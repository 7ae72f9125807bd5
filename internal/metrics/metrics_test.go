package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerRegistry(t *testing.T) {
	a := New()
	b := New()

	a.DeltasApplied.Inc()
	a.Flushes.WithLabelValues(Result(nil)).Inc()
	a.Flushes.WithLabelValues(Result(errors.New("boom"))).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DeltasApplied))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DeltasApplied))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Flushes.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Moves.WithLabelValues("ok").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `stockledger_movement_moves_total{result="ok"} 1`))
}
