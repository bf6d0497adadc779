package pool

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/google/uuid"
)

// livenessTracker is a deadline-driven liveness sweep: each registered
// MonitorToken is a TTL cache entry for as long as its client holds a
// monitor or a waiter slot, and an entry that expires without being
// explicitly released fires a synthetic client-down notification back into
// the coordinator. Grounded on internal/cachemanager's
// gocache.New(expiration, cleanupInterval) wrapper.
//
// release must only be called once the coordinator has already torn down
// the matching monitor or waiter (handleCheckin, handleCancel) or has
// confirmed neither was ever created (an immediate error reply, a request
// that never reached the coordinator). go-cache's Delete fires the same
// OnEvicted callback a real expiry does, so releasing a token that still
// has a live monitor would be indistinguishable from that monitor's client
// going down — treated as an immediate checkin of a worker the caller is
// still actively holding.
type livenessTracker struct {
	cache *gocache.Cache
}

func newLivenessTracker(ttl time.Duration, onExpire func(MonitorToken)) *livenessTracker {
	cleanup := ttl
	if cleanup < minLivenessCleanup {
		cleanup = minLivenessCleanup
	}
	c := gocache.New(ttl, cleanup)
	c.OnEvicted(func(key string, _ any) {
		tok, err := uuid.Parse(key)
		if err != nil {
			return
		}
		onExpire(MonitorToken(tok))
	})
	return &livenessTracker{cache: c}
}

func (t *livenessTracker) register(tok MonitorToken) {
	t.cache.SetDefault(tok.String(), struct{}{})
}

func (t *livenessTracker) release(tok MonitorToken) {
	t.cache.Delete(tok.String())
}
