// Package aggregates defines the canonical error kinds and aggregate contracts.
//
// Nothing here knows about a concrete store or transport; data/aggregates and the
// handlers translate their failures into these codes.
package aggregates
