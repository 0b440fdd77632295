package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// storageState is the subset of a Playwright storage-state file the session reuses.
type storageState struct {
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadStorageState reads the cookies of a saved browser storage-state file.
func LoadStorageState(path string) ([]*network.CookieParam, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(crawler.ErrConfig, fmt.Errorf("read storage state %s: %w", path, err))
	}
	cookies, err := ParseStorageState(raw)
	if err != nil {
		return nil, errors.Join(crawler.ErrConfig, fmt.Errorf("storage state %s: %w", path, err))
	}
	return cookies, nil
}

// ParseStorageState converts storage-state JSON into CDP cookie parameters.
// Cookies without a name or domain are skipped. A non-positive expiry marks a
// session cookie.
func ParseStorageState(raw []byte) ([]*network.CookieParam, error) {
	var state storageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode storage state: %w", err)
	}
	out := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSite(c.SameSite),
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			param.Expires = &expires
		}
		out = append(out, param)
	}
	return out, nil
}

func sameSite(v string) network.CookieSameSite {
	switch strings.ToLower(v) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}
