// Package ir provides the constrained value types shared by expression
// constants, stored rows and query results.
//
// ir imports nothing internal; every other package may import it.
//
// Key design constraints:
//   - NO float types anywhere - numbers are int64
//   - null is an explicit IRNull value, never a Go nil
//   - canonical JSON (RFC 8785) is the only encoding used for hashing
package ir
