package classify

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// LocaleUndetermined is reported when the bio is blank or detection failed.
const LocaleUndetermined = "und"

// Classification is the classifier's verdict on one profile.
type Classification struct {
	Links  crawler.LinkBundle
	Bio    string
	Locale string
	// LocaleErr is set when detection failed and Locale degraded to undetermined.
	LocaleErr error
}

// Classifier applies Rules and a locale detector to profiles.
type Classifier struct {
	rules    Rules
	detector crawler.LocaleDetector
	logger   *zap.Logger
}

// New builds a Classifier. A nil detector leaves every locale undetermined.
func New(rules Rules, detector crawler.LocaleDetector, logger *zap.Logger) (*Classifier, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{rules: rules.normalized(), detector: detector, logger: logger}, nil
}

// Classify builds the LinkBundle for candidate and detects the bio locale.
func (c *Classifier) Classify(profile Profile, candidate crawler.Candidate) Classification {
	out := Classification{
		Links: c.Links(profile.Links, candidate),
		Bio:   profile.Bio,
	}
	out.Locale, out.LocaleErr = c.detectLocale(profile.Bio)
	if out.LocaleErr != nil {
		c.logger.Debug("locale detection degraded",
			zap.String("candidate", candidate.String()),
			zap.Error(out.LocaleErr),
		)
	}
	return out
}

// Links classifies hyperlinks. Affiliate links follow the precedence table, the
// last eligible contact link wins, and the last link whose registrable domain
// contains the normalized handle is the personal website.
func (c *Classifier) Links(links []string, candidate crawler.Candidate) crawler.LinkBundle {
	var bundle crawler.LinkBundle
	bestRank := len(c.rules.Affiliates)
	handle := normalizeToken(candidate.String())

	for _, link := range links {
		lower := strings.ToLower(link)
		if rank, platform, ok := c.affiliateRank(lower); ok && rank < bestRank {
			bestRank = rank
			bundle.AffiliateShop = link
			bundle.AffiliatePlatform = platform
		}

		host := hostOf(link)
		if c.isContact(lower, host) {
			bundle.Contact = link
		}

		if handle == "" || host == "" {
			continue
		}
		domain := RegistrableDomain(host)
		if c.ignoredForWebsite(host, domain) {
			continue
		}
		if strings.Contains(normalizeToken(domain), handle) {
			bundle.Website = link
		}
	}
	return bundle
}

func (c *Classifier) affiliateRank(lowerLink string) (int, string, bool) {
	for rank, rule := range c.rules.Affiliates {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowerLink, kw) {
				return rank, rule.Platform, true
			}
		}
	}
	return 0, "", false
}

func (c *Classifier) isContact(lowerLink, host string) bool {
	marked := false
	for _, marker := range c.rules.ContactMarkers {
		if strings.Contains(lowerLink, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return false
	}
	return host == "" || !domainListed(host, c.rules.ContactExclusions)
}

func (c *Classifier) ignoredForWebsite(host, domain string) bool {
	return domainListed(host, c.rules.WebsiteIgnoreDomains) || domainListed(domain, c.rules.WebsiteIgnoreDomains)
}

func (c *Classifier) detectLocale(bio string) (locale string, err error) {
	if strings.TrimSpace(bio) == "" || c.detector == nil {
		return LocaleUndetermined, nil
	}
	defer func() {
		if r := recover(); r != nil {
			locale = LocaleUndetermined
			err = fmt.Errorf("%w: detector panic: %v", crawler.ErrClassify, r)
		}
	}()
	detected, derr := c.detector.Detect(bio)
	if derr != nil {
		return LocaleUndetermined, errors.Join(crawler.ErrClassify, derr)
	}
	detected = strings.ToLower(strings.TrimSpace(detected))
	if detected == "" {
		return LocaleUndetermined, nil
	}
	return detected, nil
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has no
// public suffix (IP addresses, single labels).
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// domainListed reports whether host equals or is a subdomain of any listed domain.
func domainListed(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// normalizeToken lower-cases s and drops everything but letters and digits.
func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
