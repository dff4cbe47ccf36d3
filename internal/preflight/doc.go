// Package preflight validates that the daemon's external collaborators are
// reachable before the first subscription is walked: the embedding
// endpoint, the vision-language endpoint (if configured), and the graph
// store. Surfacing a dead endpoint here gives an actionable error instead
// of failing deep inside the first file's indexing.
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx, store)
//	if checker.HasCriticalFailures(results) {
//	    // handle failures
//	}
package preflight
