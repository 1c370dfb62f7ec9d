// Package compiler turns CUE declarations of types, enums and computed
// attributes into a Schema that can be installed on a translation map.
//
// A declaration file looks like:
//
//	enum: Color: values: { Red: 0, DarkBlue: { value: 1, caption: "Navy" } }
//
//	type: Base: {
//		fields: { Value: "string", Color: "Color" }
//		computed: Calc: { type: "string", is: { field: "Value" } }
//	}
//
//	type: C: {
//		extends: "Base"
//		computed: Calc: is: { const: "c" }
//	}
//
//	base: Enum: ToString: is: { static: "caption", args: [{ this: true }] }
//
// Attribute bodies are expression trees over the declaring type; see
// parseExpr for the accepted forms. Registration is lazy: Install attaches
// one registrant per type, which runs the first time the type is looked up.
package compiler
