package ratelimit

// Scope names the counter family a check belongs to
type Scope string

const (
	ScopeGlobal      Scope = "global"
	ScopeSSHVerify   Scope = "ssh_verify"
	ScopePATVerify   Scope = "pat_verify"
	ScopeOAuthVerify Scope = "oauth_verify"
)

// Policy defines how many requests a scope allows per window
type Policy struct {
	Scope         Scope
	Limit         int64  // Requests allowed per window
	WindowSeconds int    // Time window in seconds
	Description   string // Human-readable description
}

// DefaultPolicies are used when the caller does not override a scope
var DefaultPolicies = map[Scope]Policy{
	ScopeGlobal: {
		Scope:         ScopeGlobal,
		Limit:         1000,
		WindowSeconds: 60,
		Description:   "All requests - 1000/minute",
	},
	ScopeSSHVerify: {
		Scope:         ScopeSSHVerify,
		Limit:         60,
		WindowSeconds: 60,
		Description:   "SSH key verification per fingerprint - 60/minute",
	},
	ScopePATVerify: {
		Scope:         ScopePATVerify,
		Limit:         60,
		WindowSeconds: 60,
		Description:   "Personal access token verification per prefix - 60/minute",
	},
	ScopeOAuthVerify: {
		Scope:         ScopeOAuthVerify,
		Limit:         60,
		WindowSeconds: 60,
		Description:   "OAuth client verification per client id - 60/minute",
	},
}

// PolicyFor returns the policy of scope, falling back to the most
// restrictive verification policy.
func PolicyFor(scope Scope) Policy {
	if p, ok := DefaultPolicies[scope]; ok {
		return p
	}
	return DefaultPolicies[ScopePATVerify]
}

// WithLimit returns a copy of the default policies where every
// verification scope uses limit/windowSec.
func WithLimit(limit int64, windowSec int) map[Scope]Policy {
	out := make(map[Scope]Policy, len(DefaultPolicies))
	for scope, p := range DefaultPolicies {
		if scope != ScopeGlobal {
			p.Limit = limit
			p.WindowSeconds = windowSec
		}
		out[scope] = p
	}
	return out
}
