// Package ledger encodes the lifecycle of every subtitle candidate in its
// file name. There is no database: the state of a (video, language) pair is
// re-derived from a directory listing on every run.
//
// Candidate names have the form
//
//	{popularity}.{lang}.number{slot}[.{episode}][.DRIFT|.FAILED].srt
//
// and the accepted subtitle sits next to the video as {videobase}.{lang}.srt.
// All name parsing and building lives in names.go so the format can change
// without touching the pipeline. Every mutation is a rename or a temp-file
// write followed by a rename, so an interrupted run never leaves a partially
// written file under a final name.
package ledger
