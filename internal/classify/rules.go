package classify

import (
	"fmt"
	"strings"
)

// AffiliateRule maps a platform name to the URL substrings that identify it.
type AffiliateRule struct {
	Platform string   `mapstructure:"platform"`
	Keywords []string `mapstructure:"keywords"`
}

// Rules are the configuration tables driving link classification.
type Rules struct {
	// Affiliates is ordered by precedence: earlier platforms win.
	Affiliates []AffiliateRule
	// ContactMarkers identify imprint/contact links.
	ContactMarkers []string
	// ContactExclusions are registrable domains whose contact pages are not
	// specific to the creator.
	ContactExclusions []string
	// WebsiteIgnoreDomains are never treated as a personal website.
	WebsiteIgnoreDomains []string
}

// DefaultRules returns the affiliate precedence and markers used for German
// merchandise creators.
func DefaultRules() Rules {
	return Rules{
		Affiliates: []AffiliateRule{
			{Platform: "spreadshop", Keywords: []string{"spreadshop"}},
			{Platform: "spreadshirt", Keywords: []string{"spreadshirt"}},
			{Platform: "shirtee", Keywords: []string{"shirtee"}},
		},
		ContactMarkers:       []string{"impressum"},
		WebsiteIgnoreDomains: []string{"tiktok.com"},
	}
}

// Validate rejects tables that cannot classify anything.
func (r Rules) Validate() error {
	seen := make(map[string]struct{}, len(r.Affiliates))
	for i, rule := range r.Affiliates {
		if strings.TrimSpace(rule.Platform) == "" {
			return fmt.Errorf("affiliate rule %d has no platform", i)
		}
		if _, dup := seen[rule.Platform]; dup {
			return fmt.Errorf("affiliate platform %q listed twice", rule.Platform)
		}
		seen[rule.Platform] = struct{}{}
		if len(normalizeKeywords(rule.Keywords)) == 0 {
			return fmt.Errorf("affiliate platform %q has no keywords", rule.Platform)
		}
	}
	return nil
}

// normalized returns a copy with lower-cased, trimmed, de-duplicated keywords.
func (r Rules) normalized() Rules {
	out := Rules{
		Affiliates:           make([]AffiliateRule, 0, len(r.Affiliates)),
		ContactMarkers:       normalizeKeywords(r.ContactMarkers),
		ContactExclusions:    normalizeDomains(r.ContactExclusions),
		WebsiteIgnoreDomains: normalizeDomains(r.WebsiteIgnoreDomains),
	}
	for _, rule := range r.Affiliates {
		out.Affiliates = append(out.Affiliates, AffiliateRule{
			Platform: strings.TrimSpace(rule.Platform),
			Keywords: normalizeKeywords(rule.Keywords),
		})
	}
	return out
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func normalizeDomains(in []string) []string {
	out := normalizeKeywords(in)
	for i, d := range out {
		out[i] = strings.TrimPrefix(strings.TrimSuffix(d, "."), "www.")
	}
	return out
}
