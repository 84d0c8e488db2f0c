package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, searchRequestsTotal)
	require.NotNil(t, quotaWaitSeconds)
	require.NotNil(t, shardsWrittenTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	probes := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("probe"))
	waits := testutil.ToFloat64(quotaWaitsTotal.WithLabelValues("search"))
	splits := testutil.ToFloat64(windowSplitsTotal.WithLabelValues("year"))
	fragments := testutil.ToFloat64(fragmentsWrittenTotal)
	records := testutil.ToFloat64(recordsWrittenTotal)
	entries := testutil.ToFloat64(ledgerEntriesTotal)
	shards := testutil.ToFloat64(shardsWrittenTotal)
	exhausted := testutil.ToFloat64(transportFailuresTotal.WithLabelValues("exhausted"))

	ObserveSearch("probe")
	ObserveQuotaWait("search", 3*time.Second)
	ObserveSplit("year")
	ObserveFragment(42)
	ObserveFragment(0)
	ObserveLedgerEntry()
	ObserveShard()
	ObserveTransportFailure("exhausted")

	assert.InDelta(t, probes+1, testutil.ToFloat64(searchRequestsTotal.WithLabelValues("probe")), 0)
	assert.InDelta(t, waits+1, testutil.ToFloat64(quotaWaitsTotal.WithLabelValues("search")), 0)
	assert.InDelta(t, splits+1, testutil.ToFloat64(windowSplitsTotal.WithLabelValues("year")), 0)
	assert.InDelta(t, fragments+2, testutil.ToFloat64(fragmentsWrittenTotal), 0)
	assert.InDelta(t, records+42, testutil.ToFloat64(recordsWrittenTotal), 0)
	assert.InDelta(t, entries+1, testutil.ToFloat64(ledgerEntriesTotal), 0)
	assert.InDelta(t, shards+1, testutil.ToFloat64(shardsWrittenTotal), 0)
	assert.InDelta(t, exhausted+1, testutil.ToFloat64(transportFailuresTotal.WithLabelValues("exhausted")), 0)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveShard()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "harvester_shards_written_total")
}
