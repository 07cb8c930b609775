package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	ObserveFetch("cache")
	ObservePrecache(false)
	ObserveStoreWriteFailure()
	ObserveStoreDeleted()
	ObserveTransition("activated")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `offline_agent_fetch_total{source="cache"}`)
	assert.Contains(t, string(body), `offline_agent_precache_total{result="failed"}`)
	assert.Contains(t, string(body), "offline_agent_store_write_failures_total")
	assert.Contains(t, string(body), "offline_agent_stores_deleted_total")
	assert.Contains(t, string(body), `offline_agent_lifecycle_transitions_total{state="activated"}`)
}
