// Package preflight checks that the directories the pipeline writes to are
// usable and that the external tools are installed, before any ledger file
// is touched.
//
// The run command calls RunAll and refuses to start when a check fails;
// the doctor command shows every result, including the catalog reachability
// check, as a table.
package preflight
