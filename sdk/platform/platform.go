// Package platform abstracts the execution environment the PubFlow client
// runs in. An Adapter pairs the environment's networking primitive with its
// key/value storage and answers capability queries.
//
// The runtime is detected once, by the caller, and the resulting Adapter is
// injected into the client:
//
//	adapter, err := platform.New(platform.DetectRuntime())
//	if err != nil {
//	    return err
//	}
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com").
//	    WithAdapter(adapter))
//
// In GOOS=js builds detection reads the host's JavaScript globals, so the
// same binary reports bun, node, cloudflare or browser depending on where
// it is loaded. Native builds report node.
package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Type identifies an execution environment.
type Type string

const (
	Node       Type = "node"
	Bun        Type = "bun"
	Cloudflare Type = "cloudflare"
	Browser    Type = "browser"
)

// ParseType converts a name into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Node, Bun, Cloudflare, Browser:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRuntime, s)
}

// Feature names a capability an adapter may provide.
type Feature string

const (
	FeatureFetch          Feature = "fetch"
	FeatureLocalStorage   Feature = "localStorage"
	FeatureSessionStorage Feature = "sessionStorage"
	FeatureCache          Feature = "cache"
	FeatureKV             Feature = "kv"
	FeatureCookies        Feature = "cookies"
)

var (
	// ErrUnknownRuntime is returned by the factory for an unsupported Type.
	ErrUnknownRuntime = errors.New("unknown runtime")

	// ErrFetchUnavailable is the capability error raised when the
	// environment has no networking primitive.
	ErrFetchUnavailable = errors.New("fetch unavailable")
)

// CapabilityError reports a missing primitive. It matches
// ErrFetchUnavailable when the missing feature is fetch.
type CapabilityError struct {
	Runtime Type
	Feature Feature
	Message string
}

func (e *CapabilityError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is not available in this %s environment", e.Feature, e.Runtime)
}

// Is reports whether target is the sentinel for the missing feature.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrFetchUnavailable && e.Feature == FeatureFetch
}

// Fetcher performs one HTTP exchange using the environment's primitive.
// Headers, status and body pass through unchanged.
type Fetcher interface {
	Fetch(req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(req *http.Request) (*http.Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Adapter is the per-environment capability object.
type Adapter interface {
	Fetcher

	// Type returns the environment tag. It never changes.
	Type() Type

	// Storage returns the adapter's storage. Repeated calls return the
	// same instance.
	Storage() storage.Storage

	// SupportsFeature reports whether a capability is present. It has no
	// side effects.
	SupportsFeature(f Feature) bool
}

// Option customizes adapter construction.
type Option func(*options)

type options struct {
	storage    storage.Storage
	httpClient *http.Client
	fetcher    Fetcher
	markers    *Markers
	logger     logrus.FieldLogger
}

// WithStorage replaces the adapter's default storage. On cloudflare this
// is how a durable KV store is attached.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithHTTPClient sets the net/http client used by adapters that fetch
// through net/http. Its Jar, when set, carries credentials.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFetcher replaces the networking primitive entirely.
func WithFetcher(f Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithMarkers overrides the probed host markers used for capability checks.
func WithMarkers(m Markers) Option {
	return func(o *options) { o.markers = &m }
}

// WithLogger sets the adapter logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the adapter for t.
func New(t Type, opts ...Option) (Adapter, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.markers == nil {
		m := Probe()
		o.markers = &m
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		o.logger = l
	}

	var a Adapter
	switch t {
	case Node:
		a = newNodeAdapter(o)
	case Bun:
		a = newBunAdapter(o)
	case Cloudflare:
		a = newCloudflareAdapter(o)
	case Browser:
		a = newBrowserAdapter(o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, t)
	}

	o.logger.WithFields(logrus.Fields{
		"runtime": t,
		"fetch":   a.SupportsFeature(FeatureFetch),
	}).Debug("Runtime adapter created")
	return a, nil
}

// base carries the parts every adapter shares.
type base struct {
	typ      Type
	fetcher  Fetcher
	canFetch bool
	store    storage.Storage
	markers  Markers
}

func (b *base) Type() Type {
	return b.typ
}

func (b *base) Storage() storage.Storage {
	return b.store
}

func (b *base) Fetch(req *http.Request) (*http.Response, error) {
	return b.fetcher.Fetch(req)
}

// unavailable is the fetcher of an environment without networking.
func unavailable(t Type, message string) Fetcher {
	return FetcherFunc(func(*http.Request) (*http.Response, error) {
		return nil, &CapabilityError{Runtime: t, Feature: FeatureFetch, Message: message}
	})
}

func storageOr(o *options, fallback func() storage.Storage) storage.Storage {
	if o.storage != nil {
		return o.storage
	}
	return fallback()
}
