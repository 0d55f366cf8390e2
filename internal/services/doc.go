// Package services defines shared error markers and context helpers consumed
// by the pipeline components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp the run ID, video path, and language onto a
//     context so log lines and errors can be correlated.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the categories the pipeline reacts to (retry, abandon pass,
//     surface to operator, fatal at startup).
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
