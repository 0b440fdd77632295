// Package crawler defines the core types shared across the creator crawl engine:
// candidates, classified link bundles, accepted entries, per-candidate outcomes,
// the collaborator interfaces the orchestrator depends on, and the error taxonomy
// used to decide which failures are contained and which abort a run.
package crawler
