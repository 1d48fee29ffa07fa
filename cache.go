package pageair

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canonical/pageair/internal/plan"
)

// planCacheSize bounds the number of distinct plan shapes kept. Applications
// compose a fixed set of query shapes, so evictions are rare in practice.
const planCacheSize = 256

// planCache interns compiled plans by structural hash so that structurally
// identical queries share one plan instance, and with it one cache slot in
// any layer keyed on plan identity. Hash collisions are resolved with the
// structural equality check; colliding plans hang off the same bucket.
//
// The cache is a process-wide singleton, like the statement caches of SQL
// libraries: plans are immutable so sharing them across stores is safe.
type planCache struct {
	cache *lru.Cache[uint64, []*plan.Select]
	mutex sync.Mutex
}

var once sync.Once
var singlePlanCache *planCache

// newPlanCache returns the single instance of the plan cache.
func newPlanCache() *planCache {
	once.Do(func() {
		// The only error is a non-positive size.
		cache, _ := lru.New[uint64, []*plan.Select](planCacheSize)
		singlePlanCache = &planCache{cache: cache}
	})
	return singlePlanCache
}

// intern returns the canonical instance of sel: the cached plan equal to it
// when one exists, otherwise sel itself after inserting it.
func (pc *planCache) intern(sel *plan.Select) *plan.Select {
	hash := plan.Hash(sel)
	pc.mutex.Lock()
	defer pc.mutex.Unlock()
	bucket, _ := pc.cache.Get(hash)
	for _, cached := range bucket {
		if cached.Equal(sel) {
			return cached
		}
	}
	pc.cache.Add(hash, append(bucket, sel))
	return sel
}
