// Package search turns video file names into catalog queries and walks the
// escalation ladder that decides which catalog results become download
// candidates.
//
// Query construction keeps a release year as the strongest anchor and drops
// release metadata (resolution, codec, source tags, scene groups) using the
// configured deny-list. The Engine then tries progressively broader rungs,
// always excluding popularity scores the ledger already knows and never
// proposing more candidates than the pair's remaining pool budget.
package search
