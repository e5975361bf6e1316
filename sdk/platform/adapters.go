package platform

import "github.com/pubflow/pubflow-go/sdk/storage"

// NodeAdapter is the server-side adapter. Native Go processes use it.
type NodeAdapter struct {
	base
}

func newNodeAdapter(o *options) Adapter {
	f, ok := nodeFetcher(o)
	return &NodeAdapter{base{
		typ:      Node,
		fetcher:  f,
		canFetch: ok,
		store:    storageOr(o, func() storage.Storage { return storage.NewMemoryStorage() }),
		markers:  *o.markers,
	}}
}

// SupportsFeature implements Adapter.
func (a *NodeAdapter) SupportsFeature(f Feature) bool {
	switch f {
	case FeatureFetch, FeatureCookies:
		return a.canFetch
	}
	return false
}

// BunAdapter fetches through fasthttp natively and through the host fetch
// in GOOS=js builds.
type BunAdapter struct {
	base
}

func newBunAdapter(o *options) Adapter {
	f, ok := bunFetcher(o)
	return &BunAdapter{base{
		typ:      Bun,
		fetcher:  f,
		canFetch: ok,
		store:    storageOr(o, func() storage.Storage { return storage.NewMemoryStorage() }),
		markers:  *o.markers,
	}}
}

// SupportsFeature implements Adapter.
func (a *BunAdapter) SupportsFeature(f Feature) bool {
	switch f {
	case FeatureFetch, FeatureCookies:
		return a.canFetch
	}
	return false
}

// CloudflareAdapter targets worker-like edge hosts. Its default storage is
// an in-memory placeholder; attach a durable store with WithStorage.
type CloudflareAdapter struct {
	base
	durable bool
}

func newCloudflareAdapter(o *options) Adapter {
	f, ok := edgeFetcher(o)
	return &CloudflareAdapter{
		base: base{
			typ:      Cloudflare,
			fetcher:  f,
			canFetch: ok,
			store:    storageOr(o, func() storage.Storage { return storage.NewMemoryStorage() }),
			markers:  *o.markers,
		},
		durable: o.storage != nil,
	}
}

// SupportsFeature implements Adapter.
func (a *CloudflareAdapter) SupportsFeature(f Feature) bool {
	switch f {
	case FeatureFetch:
		return a.canFetch
	case FeatureCache:
		return a.markers.Caches
	case FeatureKV:
		return a.durable
	}
	return false
}

// BrowserAdapter uses the page's fetch and localStorage. Outside a
// JavaScript host it has no networking and fails fast.
type BrowserAdapter struct {
	base
}

func newBrowserAdapter(o *options) Adapter {
	f, ok := browserFetcher(o)
	return &BrowserAdapter{base{
		typ:      Browser,
		fetcher:  f,
		canFetch: ok,
		store:    storageOr(o, browserStorage),
		markers:  *o.markers,
	}}
}

// SupportsFeature implements Adapter.
func (a *BrowserAdapter) SupportsFeature(f Feature) bool {
	switch f {
	case FeatureFetch, FeatureCookies:
		return a.canFetch
	case FeatureLocalStorage:
		return a.markers.LocalStorage
	case FeatureSessionStorage:
		return a.markers.SessionStorage
	case FeatureCache:
		return a.markers.Caches
	}
	return false
}
