//go:build wasm

package platform

import (
	"syscall/js"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Probe reads the JavaScript host's globals.
func Probe() Markers {
	g := js.Global()
	m := Markers{
		Deno:           defined(g.Get("Deno")),
		Document:       defined(g.Get("document")),
		Navigator:      defined(g.Get("navigator")),
		Caches:         defined(g.Get("caches")),
		Fetch:          g.Get("fetch").Type() == js.TypeFunction,
		LocalStorage:   defined(g.Get("localStorage")),
		SessionStorage: defined(g.Get("sessionStorage")),
	}
	if process := g.Get("process"); defined(process) {
		if versions := process.Get("versions"); defined(versions) {
			m.Bun = defined(versions.Get("bun"))
			m.Node = defined(versions.Get("node"))
		}
	}
	return m
}

func defined(v js.Value) bool {
	return !v.IsUndefined() && !v.IsNull()
}

func hostFetcher(o *options, t Type, message string) (Fetcher, bool) {
	if o.fetcher != nil {
		return o.fetcher, true
	}
	if !o.markers.Fetch {
		return unavailable(t, message), false
	}
	return &jsFetcher{}, true
}

func nodeFetcher(o *options) (Fetcher, bool) {
	return hostFetcher(o, Node, "Fetch API is not available in this Node.js environment. Please use Node.js 18+ or install a fetch polyfill.")
}

func bunFetcher(o *options) (Fetcher, bool) {
	return hostFetcher(o, Bun, "")
}

func edgeFetcher(o *options) (Fetcher, bool) {
	return hostFetcher(o, Cloudflare, "")
}

func browserFetcher(o *options) (Fetcher, bool) {
	return hostFetcher(o, Browser, "")
}

func browserStorage() storage.Storage {
	if ls, err := storage.NewLocalStorage(); err == nil {
		return ls
	}
	return storage.NewMemoryStorage()
}
