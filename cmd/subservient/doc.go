// Command subservient finds, downloads and synchronizes subtitles for a
// video library.
//
// `subservient run` resolves every (video, language) pair under the
// configured roots and then walks the operator through whatever landed in
// the manual review queue. `acquire` and `sync` run one half of the
// pipeline; `status`, `offsets`, `skip`, `review list` and `doctor` inspect
// or edit the state files without searching.
package main
