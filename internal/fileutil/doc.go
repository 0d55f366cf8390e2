// Package fileutil holds the crash-safe file primitives the subtitle ledger
// depends on: temp-then-rename writes, no-clobber renames, and sweeping of
// temp files left behind by an interrupted run.
package fileutil
