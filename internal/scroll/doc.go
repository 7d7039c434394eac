// Package scroll implements the pagination controller behind an infinite
// feed.
//
// A Controller accumulates pages from a source.Source for one query at a
// time. Pages are fetched on demand, at most one in flight per query, and
// appended in order. Changing the query bumps a generation counter, clears
// the accumulated items and starts again from the first page; a response
// that arrives for an older generation is dropped. Fetch errors never leave
// the controller: they are recorded in State and can be retried.
//
// Hosts observe the controller through Subscribe and read State with
// Snapshot. Snapshots are delivered to subscribers in the order the state
// changed, so a subscriber never sees an older generation after a newer
// one. Close detaches the controller from its host; nothing is applied
// or delivered after it returns.
package scroll
