// Package ffprobe reads container track listings through ffprobe's JSON
// output. The pipeline only consumes two facts from it: whether a video
// carries an audio track worth aligning against, and which subtitle tracks
// are embedded.
package ffprobe
