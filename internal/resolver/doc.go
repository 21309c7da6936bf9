// Package resolver settles which components of a form are visible and what
// their calculated values are for a given submission, and records which
// values must be dropped before the submission is shown to anyone.
//
// Resolution runs twice over the schema. The first pass works on a private
// copy and only settles visibility. The second pass rebuilds the data with
// that visibility known, intercepting every value write so that
// non-persistent, hidden and untouched password values are queued for
// removal. Nothing is removed until Resolution.Apply is called.
package resolver
