package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

const sampleState = `{
  "cookies": [
    {"name": "sessionid", "value": "abc", "domain": ".tiktok.com", "path": "/",
     "expires": 1767225600.5, "httpOnly": true, "secure": true, "sameSite": "Lax"},
    {"name": "tt_csrf", "value": "x", "domain": "www.tiktok.com", "path": "",
     "expires": -1, "httpOnly": false, "secure": true, "sameSite": "None"},
    {"name": "", "value": "orphan", "domain": ".tiktok.com"},
    {"name": "nodomain", "value": "v", "domain": ""}
  ],
  "origins": [{"origin": "https://www.tiktok.com", "localStorage": []}]
}`

func TestParseStorageState(t *testing.T) {
	t.Parallel()

	cookies, err := ParseStorageState([]byte(sampleState))
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	session := cookies[0]
	assert.Equal(t, "sessionid", session.Name)
	assert.Equal(t, ".tiktok.com", session.Domain)
	assert.True(t, session.HTTPOnly)
	assert.Equal(t, network.CookieSameSiteLax, session.SameSite)
	require.NotNil(t, session.Expires)
	assert.Equal(t, int64(1767225600), session.Expires.Time().Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(session.Expires.Time().Nanosecond()))

	csrf := cookies[1]
	assert.Equal(t, "/", csrf.Path)
	assert.Nil(t, csrf.Expires, "non-positive expiry is a session cookie")
	assert.Equal(t, network.CookieSameSiteNone, csrf.SameSite)
}

func TestParseStorageStateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseStorageState([]byte("{not json"))
	require.Error(t, err)
}

func TestLoadStorageState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleState), 0o600))

	cookies, err := LoadStorageState(path)
	require.NoError(t, err)
	assert.Len(t, cookies, 2)

	_, err = LoadStorageState(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, crawler.ErrConfig)
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	assert.Equal(t, network.CookieSameSiteStrict, sameSite("Strict"))
	assert.Equal(t, network.CookieSameSiteLax, sameSite("lax"))
	assert.Equal(t, network.CookieSameSite(""), sameSite("unspecified"))
}
