// Package runstate persists the small amount of state that outlives a run
// but does not belong in the subtitle ledger: the catalog bearer token and
// the Skip Registry.
//
// Both live in one operator-editable text file made of tagged blocks:
//
//	--
//	<comment>
//	[token]
//	<bearer token>
//	--
//	<comment>
//	[skipped_movies]
//	/abs/path/Movie.mkv [EN,NL]
//
// The file is re-read on every call so hand edits take effect without a
// restart. Writes replace the file atomically.
package runstate
