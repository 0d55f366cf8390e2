// Package language normalizes the subtitle language codes used in config,
// ledger file names, and catalog queries.
//
// The ledger and the catalog both speak ISO 639-1 (two letters). Operators may
// configure ISO 639-2 codes ("dut", "eng") and those are mapped down here,
// backed by the CLDR tables in golang.org/x/text.
package language
