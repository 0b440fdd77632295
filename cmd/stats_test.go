package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/results"
)

func sampleEntries() []crawler.Entry {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []crawler.Entry{
		{Username: "alice", Provenance: crawler.ProvenanceSearch, AffiliatePlatform: "spreadshop", Locale: "de", Reason: "locale", AcceptedAt: at},
		{Username: "bob", Provenance: crawler.ProvenanceCategory, Locale: "de", Reason: "locale", AcceptedAt: at},
		{Username: "carol", Provenance: crawler.ProvenanceSearch, Reason: "contact-link", AcceptedAt: at},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	report := summarize(5, sampleEntries())

	assert.Equal(t, 5, report.Checkpointed)
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, map[string]int{"search": 2, "category": 1}, report.ByProvenance)
	assert.Equal(t, map[string]int{"spreadshop": 1}, report.ByPlatform)
	assert.Equal(t, map[string]int{"de": 2}, report.ByLocale)
	assert.Equal(t, map[string]int{"locale": 2, "contact-link": 1}, report.ByReason)
}

func TestWriteStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeStats(&buf, summarize(2, sampleEntries()[:1])))

	out := buf.String()
	assert.Contains(t, out, "checkpointed: 2\naccepted: 1\n")
	assert.Contains(t, out, "provenance:\n  search")
	assert.Contains(t, out, "affiliate platform:\n  spreadshop")
}

func TestStatsCommandReadsFileStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.txt")
	resultsPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(checkpointPath, []byte("alice\nbob\ncarol\ndave\n"), 0o600))

	store, err := results.LoadOrInit(resultsPath)
	require.NoError(t, err)
	for _, e := range sampleEntries() {
		require.NoError(t, store.Append(context.Background(), e))
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("storage:\n  checkpoint_path: %q\n  results_path: %q\n", checkpointPath, resultsPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "stats", "--json"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var report statsReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 4, report.Checkpointed)
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, 2, report.ByProvenance["search"])
}

func TestStatsCommandEmptyState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("storage:\n  checkpoint_path: %q\n  results_path: %q\n",
		filepath.Join(dir, "none.txt"), filepath.Join(dir, "none.json"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "stats"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "checkpointed: 0\naccepted: 0\n", out.String())
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: redis\n"), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "stats"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrConfig)
}
