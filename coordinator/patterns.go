package coordinator

// Key families are part of the wire contract with the knowledge-base
// resolvers: readers cache under these shapes, so the invalidation side
// must enumerate exactly them.

// ComponentPatterns lists every key family touched by a change to one
// component: the entity itself, its sub-resources, and the derived
// list/search/graph projections that embed it.
func ComponentPatterns(componentID string) []string {
	return []string{
		"component:" + componentID,
		"component:" + componentID + ":*",
		"components:list:*",
		"search:components:*",
		"graph:*:" + componentID + "*",
	}
}

// ManifestPatterns lists the key families derived from the manifest as a
// whole. Per-component entries survive a manifest rebuild.
func ManifestPatterns() []string {
	return []string{
		"manifest:*",
		"components:list:*",
		"search:components:*",
	}
}
