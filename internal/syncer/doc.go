// Package syncer runs the alignment tool over untested ledger candidates and
// turns each run into a ledger transition.
//
// Candidates of a pair are tried in ascending slot order and the first
// acceptable alignment wins. The offset is the shift the tool applied to the
// first cue, classified against the accept and reject thresholds: at or
// below accept is a clean accept, at or below reject is an accept that is
// also recorded for the operator to eyeball, above reject renames the
// candidate to DRIFT, and a tool failure renames it to FAILED.
package syncer
