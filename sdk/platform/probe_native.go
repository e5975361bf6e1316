//go:build !wasm

package platform

import (
	"net/http"
	"net/http/cookiejar"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Probe returns the markers of a native process, which plays the Node
// role: it has networking and no DOM.
func Probe() Markers {
	return Markers{Node: true, Fetch: true}
}

func httpFetcher(o *options) Fetcher {
	if o.fetcher != nil {
		return o.fetcher
	}
	client := o.httpClient
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Jar: jar}
	}
	return FetcherFunc(client.Do)
}

func nodeFetcher(o *options) (Fetcher, bool) {
	return httpFetcher(o), true
}

func edgeFetcher(o *options) (Fetcher, bool) {
	return httpFetcher(o), true
}

func bunFetcher(o *options) (Fetcher, bool) {
	if o.fetcher != nil {
		return o.fetcher, true
	}
	return newFastHTTPFetcher(nil), true
}

func browserFetcher(o *options) (Fetcher, bool) {
	if o.fetcher != nil {
		return o.fetcher, true
	}
	return unavailable(Browser, "Fetch API is not available in this browser environment: no JavaScript host"), false
}

func browserStorage() storage.Storage {
	return storage.NewMemoryStorage()
}
