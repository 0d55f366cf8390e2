// Package pipeline runs the library through the escalation resolver.
//
// A Runner discovers videos, walks every wanted language of each one in
// order and hands the (video, language) pair to the resolver. It owns the
// run identity, the single-instance lock, the wiring between the catalog
// client and the search/acquire/sync stages, and the effects the review
// session asks for. Nothing here runs concurrently: pairs are resolved one
// after another on the calling goroutine.
package pipeline
