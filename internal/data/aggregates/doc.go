// Package aggregates implements the bulk transaction aggregate on top of a
// statestore.Repository.
//
// The aggregate owns the root record and reads every child straight from the
// store on each call. Child writes are single attribute writes.
package aggregates
