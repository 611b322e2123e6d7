// Package payee gates inbound HTTP handlers behind the 402 handshake: it
// matches routes, issues requirements, decodes payment envelopes and drives
// facilitator settlement. The core is framework-independent; net/http and
// gin shims bind it.
package payee

import "strings"

// RouteConfig prices one route. Amount is human-readable decimal units of
// the asset; conversion to atomic units happens against a live decimals
// lookup when requirements are built.
type RouteConfig struct {
	Amount      string `json:"amount" validate:"required"`
	Asset       string `json:"asset" validate:"required"`
	Network     string `json:"network" validate:"required"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Route binds a pattern to its price. Patterns support `:param` segments
// (match exactly one segment) and a trailing or inline `*` (match any one
// segment; a trailing `*` also matches the whole remaining path).
type Route struct {
	Pattern string
	Config  RouteConfig
}

// RouteTable is an ordered list of routes; the first match wins, in
// declaration order.
type RouteTable []Route

// Match returns the config of the first route matching path.
func (rt RouteTable) Match(path string) (*RouteConfig, bool) {
	for i := range rt {
		if matchPattern(rt[i].Pattern, path) {
			return &rt[i].Config, true
		}
	}
	return nil, false
}

func matchPattern(pattern, path string) bool {
	ps := splitPath(pattern)
	ts := splitPath(path)

	for i, seg := range ps {
		// A trailing * swallows the rest of the path.
		if seg == "*" && i == len(ps)-1 {
			return len(ts) >= i
		}
		if i >= len(ts) {
			return false
		}
		if seg == "*" || strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
