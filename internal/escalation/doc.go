// Package escalation drives one (video, language) pair from "needs a
// subtitle" to a terminal state.
//
// The pair's state is never stored. Derive reads it back from the ledger
// snapshot and the review queue, so a killed run resumes exactly where the
// files on disk say it was. Resolver strings the search ladder, the
// download batches and the slot loop together and hands the pair to the
// review queue when the ladder runs dry or the pool cap is hit.
package escalation
