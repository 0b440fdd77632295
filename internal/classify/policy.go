package classify

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// Mode selects the acceptance predicate.
type Mode string

// Acceptance modes.
const (
	// ModeAlways accepts every classified candidate.
	ModeAlways Mode = "always"
	// ModeLocale accepts on any weak locale signal.
	ModeLocale Mode = "locale"
)

// Acceptance reasons recorded on entries and rejections.
const (
	ReasonUnconditional = "unconditional"
	ReasonLocale        = "locale"
	ReasonCountryDomain = "country-domain"
	ReasonContactLink   = "contact-link"
	ReasonNoSignal      = "no-locale-signal"
)

// Policy decides which classified candidates become entries.
type Policy struct {
	Mode          Mode
	TargetLocale  string
	TargetCountry string
}

// Decision is the outcome of the acceptance predicate.
type Decision struct {
	Accept bool
	Reason string
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeAlways:
		return nil
	case ModeLocale:
		if strings.TrimSpace(p.TargetLocale) == "" {
			return fmt.Errorf("%w: target locale is required in %q mode", crawler.ErrConfig, ModeLocale)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown acceptance mode %q", crawler.ErrConfig, p.Mode)
	}
}

// Decide accepts when the bio locale matches the target, when any classified link
// sits under the target country's domain, or when a contact link was found.
func (p Policy) Decide(c Classification) Decision {
	if p.Mode == ModeAlways {
		return Decision{Accept: true, Reason: ReasonUnconditional}
	}
	if c.Locale != LocaleUndetermined && sameLanguage(c.Locale, p.TargetLocale) {
		return Decision{Accept: true, Reason: ReasonLocale}
	}
	if cc := strings.ToLower(strings.Trim(p.TargetCountry, ". ")); cc != "" {
		for _, link := range c.Links.URLs() {
			if strings.HasSuffix(hostOf(link), "."+cc) {
				return Decision{Accept: true, Reason: ReasonCountryDomain}
			}
		}
	}
	if c.Links.Contact != "" {
		return Decision{Accept: true, Reason: ReasonContactLink}
	}
	return Decision{Accept: false, Reason: ReasonNoSignal}
}

func sameLanguage(a, b string) bool {
	return strings.EqualFold(primarySubtag(a), primarySubtag(b)) && primarySubtag(a) != ""
}

func primarySubtag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
