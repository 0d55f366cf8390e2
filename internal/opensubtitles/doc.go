// Package opensubtitles is a small client for the OpenSubtitles REST API:
// login, subtitle search, download link resolution, and the final fetch of
// the subtitle bytes.
//
// The client owns the transport policy. A 429 sleeps pause_seconds and
// replays the whole call, a 401 triggers exactly one re-login, and 503 on
// the two download calls is retried with a linear backoff capped at 30s.
// Every wait goes through an injectable sleeper so tests never block.
package opensubtitles
