package classify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// DefaultBioSelector locates the bio text on a profile page.
const DefaultBioSelector = "[data-e2e='user-bio']"

// Profile is the part of a rendered profile the classifier needs.
type Profile struct {
	Bio   string
	Links []string
}

// ParseProfile extracts the bio text and every hyperlink, in document order,
// from a rendered profile. Relative links are resolved against the document URL.
func ParseProfile(doc crawler.Document, bioSelector string) (Profile, error) {
	if bioSelector == "" {
		bioSelector = DefaultBioSelector
	}
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return Profile{}, fmt.Errorf("parse profile html: %w", err)
	}
	base, _ := url.Parse(doc.URL)

	var profile Profile
	parsed.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if link := resolve(base, strings.TrimSpace(href)); link != "" {
			profile.Links = append(profile.Links, link)
		}
	})
	if bio := parsed.Find(bioSelector).First(); bio.Length() > 0 {
		profile.Bio = strings.TrimSpace(bio.Text())
	}
	return profile, nil
}

func resolve(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() || base == nil || base.Host == "" {
		return href
	}
	return base.ResolveReference(ref).String()
}
