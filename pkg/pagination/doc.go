// Package pagination drains a token-based change feed.
//
// The remote change feed returns every entity whose token is greater than
// the requested one. The Engine repeatedly requests a page for the current
// cursor, streams the mapped records to a Sink, and moves the cursor to the
// highest token observed in the page. The new cursor is flushed to the
// StateStore before the next request, so a crash loses at most the page in
// flight.
//
// Example usage:
//
//	engine, err := pagination.New(pagination.Config{
//		Fetcher: sherpaClient,
//		Retry:   retry.New(retry.DefaultConfig()),
//		Store:   store,
//		Sink:    singer.NewWriter(os.Stdout),
//	})
//	result, err := engine.Run(ctx, driver.Job(500))
//
// A run ends when a page carries no items or when no item advances the
// cursor. Retry exhaustion aborts the run; the last flushed cursor stays
// valid for the next invocation.
package pagination
