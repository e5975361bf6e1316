package platform

// Markers is a snapshot of the host globals detection looks at.
type Markers struct {
	// Bun is set when process.versions.bun exists.
	Bun bool
	// Node is set when process.versions.node exists.
	Node bool
	// Deno is set when a Deno global exists.
	Deno bool
	// Document and Navigator are the DOM globals.
	Document  bool
	Navigator bool
	// Caches is set when a Cache API global exists.
	Caches bool
	// Fetch is set when a callable global fetch exists.
	Fetch bool
	// LocalStorage and SessionStorage are the Web Storage globals.
	LocalStorage   bool
	SessionStorage bool
}

// Detect maps markers to a runtime. The first matching rule wins:
// bun, then node, then a worker-like host (no Deno, no DOM, a Cache API
// and a callable fetch), otherwise browser.
func Detect(m Markers) Type {
	switch {
	case m.Bun:
		return Bun
	case m.Node:
		return Node
	case !m.Deno && !m.Document && !m.Navigator && m.Caches && m.Fetch:
		return Cloudflare
	default:
		return Browser
	}
}

// DetectRuntime probes the current host and applies Detect.
func DetectRuntime() Type {
	return Detect(Probe())
}
