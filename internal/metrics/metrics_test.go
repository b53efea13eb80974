package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRelayRequest("wss://nos.lol", "req", nil)
		c.RecordDroppedEvent("full")
		c.SetConnections(3)
		c.RecordFetch("ids", time.Second, 2)
		c.CacheHit("events")
		c.CacheMiss("events")
		c.RecordDelivery("profile", "event")
		c.RecordPayment("paid")
	})
	assert.Nil(t, c.Registry())
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")
	c.RecordRelayRequest("wss://nos.lol", "req", nil)
	c.RecordRelayRequest("wss://nos.lol", "req", errors.New("dial"))
	c.CacheHit("profiles")
	c.CacheHit("profiles")
	c.CacheMiss("profiles")

	body := scrape(t, c)
	assert.Contains(t, body, `test_relay_requests_total{op="req",relay="wss://nos.lol"} 2`)
	assert.Contains(t, body, `test_relay_failures_total{op="req",relay="wss://nos.lol"} 1`)
	assert.Contains(t, body, `test_cache_hits_total{cache="profiles"} 2`)
	assert.Contains(t, body, `test_cache_misses_total{cache="profiles"} 1`)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("")
	c.RecordPayment("paid")

	assert.Contains(t, scrape(t, c), `universe_wallet_payments_total{result="paid"} 1`)
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
