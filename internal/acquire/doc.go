// Package acquire materializes a batch of ranked catalog candidates into the
// ledger as untested subtitle files.
//
// A candidate whose download fails is left absent, not marked: FAILED is
// reserved for alignment failures, and an unreachable candidate is simply
// offered again on the next pass. Storage failures stop the batch because
// the ledger could otherwise drift from what is on disk.
package acquire
