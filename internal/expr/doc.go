// Package expr is the expression tree that computed attributes are defined
// with and that queries are written in.
//
// Nodes are immutable. Every constructor returns a new node and the rewriting
// helpers (Rewrite, Replace, Rebind) always build new trees that share the
// untouched subtrees of their input.
//
// Node is a sealed interface using the marker method pattern, so type
// switches over it are exhaustive:
//
//	switch n := node.(type) {
//	case *PropertyRead:
//	case *MethodCall:
//	...
//	}
//
// Besides the tree itself the package provides a deterministic printer
// (Format), a content fingerprint over the canonical encoding (Fingerprint),
// a Walk/Visitor traversal and a closure compiler (Compile) used for
// in-memory evaluation against an Instance.
package expr
