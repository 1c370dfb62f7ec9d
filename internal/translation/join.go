package translation

import (
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
)

// BuildJoin rewrites join(separator, args...) into nested three-argument
// concatenations:
//
//	concat(a0, sep, concat(a1, sep, ... concat(an, "", "")))
//
// with no separator after the last argument. Property reads in args that
// share the target of the first one are re-targeted onto the returned
// lambda's row parameter; source is the expression the row stands for, or
// nil when no argument reads a property (the lambda then has no parameter).
//
// The separator must be a string (or null) constant.
func BuildJoin(separator expr.Node, args []expr.Node) (l *expr.Lambda, source expr.Node, err error) {
	sep, ok := separator.(*expr.Constant)
	if !ok {
		return nil, nil, NewUnsupportedError("%s separator must be a constant, got %s", expr.FuncJoin, expr.Format(separator))
	}
	var delim string
	switch v := sep.Value.(type) {
	case ir.IRString:
		delim = string(v)
	case ir.IRNull:
	default:
		return nil, nil, NewUnsupportedError("%s separator must be a string, got %s", expr.FuncJoin, ir.Format(v))
	}

	for _, a := range args {
		if r, ok := a.(*expr.PropertyRead); ok {
			source = r.Target
			break
		}
	}
	var row *expr.Parameter
	if source != nil {
		row = expr.Param("row", source.Type())
	}

	body := concatChain(args, delim, row, source)
	if row == nil {
		return &expr.Lambda{Body: body}, nil, nil
	}
	return expr.NewLambda(row, body), source, nil
}

func concatChain(args []expr.Node, delim string, row *expr.Parameter, source expr.Node) expr.Node {
	if len(args) == 0 {
		return expr.Str("")
	}
	if len(args) == 1 {
		delim = ""
	}
	return expr.Static(expr.FuncConcat,
		retarget(args[0], row, source),
		expr.Str(delim),
		concatChain(args[1:], delim, row, source))
}

func retarget(a expr.Node, row *expr.Parameter, source expr.Node) expr.Node {
	r, ok := a.(*expr.PropertyRead)
	if !ok || row == nil {
		return a
	}
	if r.Target != source && expr.Format(r.Target) != expr.Format(source) {
		return a
	}
	return &expr.PropertyRead{Target: row, Member: r.Member, Typ: r.Typ}
}
