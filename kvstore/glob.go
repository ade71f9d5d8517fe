package kvstore

import (
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache size for compiled key patterns. Invalidation reuses a small set of
// pattern shapes, so hits dominate.
const globCacheSize = 256

// globCache caches compiled patterns shared by the memory and pebble clients
var globCache *lru.Cache[string, glob.Glob]

func init() {
	var err error
	globCache, err = lru.New[string, glob.Glob](globCacheSize)
	if err != nil {
		panic("failed to create glob cache: " + err.Error())
	}
}

// compileGlob compiles a key pattern, returning a cached compilation when one
// exists. Patterns match the whole key; * crosses segment separators like
// Redis KEYS does.
func compileGlob(pattern string) (glob.Glob, error) {
	if g, ok := globCache.Get(pattern); ok {
		return g, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	globCache.Add(pattern, g)
	return g, nil
}
