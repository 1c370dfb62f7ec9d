// Package types models the host types that computed attributes are declared on.
//
// The model is deliberately small: struct types with single inheritance,
// enum types with named integer values, and a handful of scalars. Every type
// ultimately derives from Object, the universal root, which is where the
// upward hierarchy walk of the inliner stops.
//
// A Universe is the catalog of every known type. It answers the questions the
// rest of the engine needs at rewrite time without any runtime reflection:
//
//   - IsAssignableFrom: is one type a supertype of (or equal to) another?
//   - Chain: the ancestor chain from a type up to Object
//   - Subtypes: every known strict descendant of a type, in declaration order
//   - CommonAncestor: the nearest type both arguments derive from
//
// Types are built once at load time and treated as immutable afterwards.
package types
