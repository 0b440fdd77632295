package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

type fakeDetector struct {
	locale string
	err    error
	panics bool
	calls  int
}

func (d *fakeDetector) Detect(string) (string, error) {
	d.calls++
	if d.panics {
		panic("index out of range")
	}
	return d.locale, d.err
}

func newTestClassifier(t *testing.T, rules Rules, detector crawler.LocaleDetector) *Classifier {
	t.Helper()
	c, err := New(rules, detector, nil)
	require.NoError(t, err)
	return c
}

func TestAffiliatePrecedence(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)

	links := []string{"https://x.myshirtee.com", "https://shop.spreadshop.com/a"}
	bundle := c.Links(links, "nomatch")
	assert.Equal(t, "https://shop.spreadshop.com/a", bundle.AffiliateShop)
	assert.Equal(t, "spreadshop", bundle.AffiliatePlatform)

	// Order of appearance does not change the outcome.
	reversed := c.Links([]string{links[1], links[0]}, "nomatch")
	assert.Equal(t, bundle, reversed)
}

func TestAffiliateFirstMatchWithinPlatform(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)
	bundle := c.Links([]string{
		"https://www.shirtee.com/de/store/one",
		"https://www.shirtee.com/de/store/two",
	}, "nomatch")
	assert.Equal(t, "https://www.shirtee.com/de/store/one", bundle.AffiliateShop)
	assert.Equal(t, "shirtee", bundle.AffiliatePlatform)
}

func TestAffiliatePrecedenceIsConfigurable(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.Affiliates = []AffiliateRule{
		{Platform: "shirtee", Keywords: []string{"SHIRTEE"}},
		{Platform: "spreadshop", Keywords: []string{"spreadshop"}},
	}
	c := newTestClassifier(t, rules, nil)
	bundle := c.Links([]string{"https://shop.spreadshop.com/a", "https://x.myshirtee.com"}, "nomatch")
	assert.Equal(t, "https://x.myshirtee.com", bundle.AffiliateShop)
}

func TestContactExclusion(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.ContactExclusions = []string{"agency-legal.de"}
	c := newTestClassifier(t, rules, nil)

	excluded := c.Links([]string{"https://www.agency-legal.de/impressum"}, "nomatch")
	assert.Empty(t, excluded.Contact)

	own := c.Links([]string{"https://creator-merch.de/Impressum"}, "nomatch")
	assert.Equal(t, "https://creator-merch.de/Impressum", own.Contact)

	mixed := c.Links([]string{
		"https://other.de/impressum",
		"https://creator-merch.de/impressum",
		"https://www.agency-legal.de/impressum",
	}, "nomatch")
	assert.Equal(t, "https://creator-merch.de/impressum", mixed.Contact)
}

func TestContactLastMatchWins(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)
	bundle := c.Links([]string{
		"https://a.de/impressum",
		"https://b.de/impressum",
	}, "zzz")
	assert.Equal(t, "https://b.de/impressum", bundle.Contact)
}

func TestWebsiteLastMatchWins(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)
	bundle := c.Links([]string{
		"https://max-mustermann.de",
		"https://www.tiktok.com/@max.mustermann",
		"https://shop.maxmustermann.com/home",
		"https://unrelated.org",
	}, "max.mustermann")
	assert.Equal(t, "https://shop.maxmustermann.com/home", bundle.Website)
}

func TestWebsiteUsesRegistrableDomainOnly(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)
	// The handle appears in the path and subdomain but not in the registrable domain.
	bundle := c.Links([]string{
		"https://example.com/creator",
		"https://creator.example.com",
	}, "creator")
	assert.Empty(t, bundle.Website)
}

func TestWebsiteSkipsRelativeAndIgnoredLinks(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, DefaultRules(), nil)
	bundle := c.Links([]string{"/@tiktok", "https://www.tiktok.com/"}, "tiktok")
	assert.Empty(t, bundle.Website)
}

func TestClassifyLocale(t *testing.T) {
	t.Parallel()

	detector := &fakeDetector{locale: "DE"}
	c := newTestClassifier(t, DefaultRules(), detector)

	got := c.Classify(Profile{Bio: "Hallo, willkommen auf meinem Kanal"}, "creator")
	assert.Equal(t, "de", got.Locale)
	assert.NoError(t, got.LocaleErr)
	assert.Equal(t, 1, detector.calls)
}

func TestClassifyBlankBioSkipsDetector(t *testing.T) {
	t.Parallel()

	detector := &fakeDetector{locale: "de"}
	c := newTestClassifier(t, DefaultRules(), detector)

	for _, bio := range []string{"", "   \n\t"} {
		got := c.Classify(Profile{Bio: bio}, "creator")
		assert.Equal(t, LocaleUndetermined, got.Locale)
	}
	assert.Equal(t, 0, detector.calls)
}

func TestClassifyDetectorFailureDegrades(t *testing.T) {
	t.Parallel()

	failing := newTestClassifier(t, DefaultRules(), &fakeDetector{err: errors.New("no trigrams")})
	got := failing.Classify(Profile{Bio: "???", Links: []string{"https://a.spreadshop.com"}}, "creator")
	assert.Equal(t, LocaleUndetermined, got.Locale)
	assert.ErrorIs(t, got.LocaleErr, crawler.ErrClassify)
	assert.Equal(t, "https://a.spreadshop.com", got.Links.AffiliateShop)

	panicking := newTestClassifier(t, DefaultRules(), &fakeDetector{panics: true})
	got = panicking.Classify(Profile{Bio: "???"}, "creator")
	assert.Equal(t, LocaleUndetermined, got.Locale)
	assert.ErrorIs(t, got.LocaleErr, crawler.ErrClassify)
}

func TestNewRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	_, err := New(Rules{Affiliates: []AffiliateRule{{Platform: "x"}}}, nil, nil)
	assert.ErrorIs(t, err, crawler.ErrConfig)

	_, err = New(Rules{Affiliates: []AffiliateRule{
		{Platform: "x", Keywords: []string{"a"}},
		{Platform: "x", Keywords: []string{"b"}},
	}}, nil, nil)
	assert.ErrorIs(t, err, crawler.ErrConfig)
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"shop.example.co.uk": "example.co.uk",
		"WWW.Example.DE":     "example.de",
		"localhost":          "localhost",
		"127.0.0.1":          "127.0.0.1",
	}
	for host, want := range testCases {
		assert.Equal(t, want, RegistrableDomain(host), host)
	}
}

func TestNormalizeToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "maxmustermann", normalizeToken("Max.Muster_mann"))
	assert.Equal(t, "müller99", normalizeToken("Müller-99"))
	assert.Equal(t, "", normalizeToken("._-"))
}
