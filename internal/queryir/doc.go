// Package queryir is the query representation handed from the inliner to a
// backend compiler.
//
// A query selects rows of one type (and its subtypes) and is written with
// expression trees over a single row parameter:
//
//	[query with computed members] -> translation.InlineQuery -> [query over stored fields] -> querysql
//
// Query is a sealed interface using the marker method pattern, so backends
// can switch over it exhaustively.
//
// The translatable fragment is what a backend must support after inlining:
//   - reads of stored fields of the row
//   - constants, equality, &&, ||
//   - conditionals
//   - runtime type tests and casts of the row
//   - the concat host function
//
// Validate reports anything outside that fragment. A query that still reads
// computed members is valid input to the inliner but not to a backend.
package queryir
