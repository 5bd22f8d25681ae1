// Package device derives a coarse client descriptor from request metadata.
// The descriptor feeds audit events and session listings only; it is never
// a factor in any security decision.
package device

import (
	"strings"
	"time"

	"github.com/contractdesk/authcore/internal/cache"
)

// Descriptor is the summarized client identity shown in audit trails and
// active-session listings.
type Descriptor struct {
	Browser string
	OS      string
	Kind    string // "desktop", "mobile", "tablet", "bot", "unknown"
}

// Resolver parses user-agent strings, memoizing results since a small set
// of agents dominates real traffic.
type Resolver struct {
	cache *cache.Cache[Descriptor]
}

// NewResolver creates a Resolver with a bounded parse cache.
func NewResolver(cacheSize int, cacheTTL time.Duration) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Resolver{cache: cache.New[Descriptor](cacheSize, cacheTTL)}
}

// Resolve maps a raw User-Agent header to a Descriptor. Empty or
// unrecognized agents resolve to "unknown" fields rather than errors.
func (r *Resolver) Resolve(userAgent string) Descriptor {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return Descriptor{Browser: "unknown", OS: "unknown", Kind: "unknown"}
	}
	if d, ok := r.cache.Get(ua); ok {
		return d
	}
	d := parse(ua)
	r.cache.Set(ua, d)
	return d
}

func parse(ua string) Descriptor {
	lower := strings.ToLower(ua)

	d := Descriptor{
		Browser: browserOf(lower),
		OS:      osOf(lower),
		Kind:    kindOf(lower),
	}
	return d
}

func browserOf(ua string) string {
	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"):
		return "edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "firefox/"):
		return "firefox"
	case strings.Contains(ua, "chrome/"), strings.Contains(ua, "crios/"):
		return "chrome"
	case strings.Contains(ua, "safari/"):
		return "safari"
	case strings.Contains(ua, "curl/"):
		return "curl"
	default:
		return "unknown"
	}
}

func osOf(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return "unknown"
	}
}

func kindOf(ua string) string {
	switch {
	case strings.Contains(ua, "bot"), strings.Contains(ua, "crawler"),
		strings.Contains(ua, "spider"), strings.Contains(ua, "curl/"):
		return "bot"
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "iphone"),
		strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

// String renders the descriptor as "browser/os/kind" for audit payloads.
func (d Descriptor) String() string {
	return d.Browser + "/" + d.OS + "/" + d.Kind
}
