package security

import (
	"strings"
	"sync/atomic"
	"time"
)

// Default analyzer thresholds.
const (
	DefaultRapidRequestThreshold = 8
	DefaultRapidRequestWindow    = 60 * time.Second
	DefaultEnumerationThreshold  = 5
	DefaultEnumerationWindow     = 60 * time.Second
	DefaultMinUserAgentLength    = 10
)

// DefaultBotUserAgents are substrings of automated clients.
var DefaultBotUserAgents = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "go-http-client", "httpclient", "headless",
}

// DefaultExploitUserAgents are substrings of attack tooling.
var DefaultExploitUserAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"wpscan", "acunetix", "nessus", "zgrab", "<script", "union select",
}

// Policy is the tunable part of detection.
type Policy struct {
	// AllowedOrigins lists hosts allowed in the Origin header. Entries may be
	// "*.example.com". Empty allows any host over HTTPS.
	AllowedOrigins []string
	// AllowInsecureLocalhost accepts http://localhost origins.
	AllowInsecureLocalhost bool

	BotUserAgents      []string
	ExploitUserAgents  []string
	MinUserAgentLength int

	RapidRequestThreshold int
	RapidRequestWindow    time.Duration
	EnumerationThreshold  int
	EnumerationWindow     time.Duration
}

// DefaultPolicy returns the default detection policy.
func DefaultPolicy() Policy {
	return Policy{
		BotUserAgents:         append([]string(nil), DefaultBotUserAgents...),
		ExploitUserAgents:     append([]string(nil), DefaultExploitUserAgents...),
		MinUserAgentLength:    DefaultMinUserAgentLength,
		RapidRequestThreshold: DefaultRapidRequestThreshold,
		RapidRequestWindow:    DefaultRapidRequestWindow,
		EnumerationThreshold:  DefaultEnumerationThreshold,
		EnumerationWindow:     DefaultEnumerationWindow,
	}
}

// normalized lower-cases match lists and fills zero thresholds.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MinUserAgentLength <= 0 {
		p.MinUserAgentLength = d.MinUserAgentLength
	}
	if p.RapidRequestThreshold <= 0 {
		p.RapidRequestThreshold = d.RapidRequestThreshold
	}
	if p.RapidRequestWindow <= 0 {
		p.RapidRequestWindow = d.RapidRequestWindow
	}
	if p.EnumerationThreshold <= 0 {
		p.EnumerationThreshold = d.EnumerationThreshold
	}
	if p.EnumerationWindow <= 0 {
		p.EnumerationWindow = d.EnumerationWindow
	}
	p.BotUserAgents = lowerAll(p.BotUserAgents)
	p.ExploitUserAgents = lowerAll(p.ExploitUserAgents)
	p.AllowedOrigins = lowerAll(p.AllowedOrigins)
	return p
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PolicyHolder publishes a Policy to concurrent readers. Store replaces it
// atomically, so a config reload never pauses validation.
type PolicyHolder struct {
	p atomic.Pointer[Policy]
}

// NewPolicyHolder returns a holder initialised with p.
func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.Store(p)
	return h
}

// Load returns the current policy.
func (h *PolicyHolder) Load() Policy {
	return *h.p.Load()
}

// Store replaces the policy.
func (h *PolicyHolder) Store(p Policy) {
	n := p.normalized()
	h.p.Store(&n)
}
