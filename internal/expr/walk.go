package expr

// Visitor is implemented by algorithms that walk the tree.
type Visitor interface {
	Visit(Node) Visitor
}

// Walk traverses the tree rooted at node depth-first. If v.Visit returns
// nil the children of node are skipped.
func Walk(v Visitor, node Node) {
	if node == nil || v == nil {
		return
	}
	if v = v.Visit(node); v == nil {
		return
	}
	for _, child := range Children(node) {
		Walk(v, child)
	}
}

type inspector func(Node) bool

func (f inspector) Visit(n Node) Visitor {
	if f(n) {
		return f
	}
	return nil
}

// Inspect calls fn for every node in pre-order. Returning false skips the
// children of that node.
func Inspect(node Node, fn func(Node) bool) {
	Walk(inspector(fn), node)
}

// Children returns the direct children of n in evaluation order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *PropertyRead:
		return []Node{n.Target}
	case *MethodCall:
		var out []Node
		if n.Target != nil {
			out = append(out, n.Target)
		}
		return append(out, n.Args...)
	case *Conditional:
		return []Node{n.Test, n.IfTrue, n.IfFalse}
	case *TypeTest:
		return []Node{n.Target}
	case *Convert:
		return []Node{n.Target}
	case *Lambda:
		out := make([]Node, 0, len(n.Params)+1)
		for _, p := range n.Params {
			out = append(out, p)
		}
		return append(out, n.Body)
	case *Binary:
		return []Node{n.Left, n.Right}
	case *NoTranslate:
		return []Node{n.Target}
	default:
		// *Parameter and *Constant are leaves.
		return nil
	}
}

// WithChildren returns a copy of n with its children replaced, in the order
// Children reports them. It returns n itself when every child is unchanged.
func WithChildren(n Node, kids []Node) Node {
	old := Children(n)
	if len(old) != len(kids) {
		panic("expr: WithChildren called with wrong child count")
	}
	same := true
	for i := range old {
		if old[i] != kids[i] {
			same = false
			break
		}
	}
	if same {
		return n
	}

	switch n := n.(type) {
	case *PropertyRead:
		return &PropertyRead{Target: kids[0], Member: n.Member, Typ: n.Typ}
	case *MethodCall:
		c := &MethodCall{Method: n.Method, Typ: n.Typ}
		if n.Target != nil {
			c.Target, kids = kids[0], kids[1:]
		}
		c.Args = append([]Node(nil), kids...)
		return c
	case *Conditional:
		return NewConditional(kids[0], kids[1], kids[2])
	case *TypeTest:
		return &TypeTest{Target: kids[0], Test: n.Test}
	case *Convert:
		return &Convert{Target: kids[0], To: n.To}
	case *Lambda:
		params := make([]*Parameter, len(n.Params))
		for i := range n.Params {
			// A parameter declaration only changes identity, never shape.
			if p, ok := kids[i].(*Parameter); ok {
				params[i] = p
			} else {
				params[i] = n.Params[i]
			}
		}
		return &Lambda{Params: params, Body: kids[len(kids)-1]}
	case *Binary:
		return &Binary{Op: n.Op, Left: kids[0], Right: kids[1]}
	case *NoTranslate:
		return &NoTranslate{Target: kids[0]}
	default:
		return n
	}
}

// Rewrite rebuilds the tree bottom-up: the children of every node are
// rewritten first, then fn is applied to the rebuilt node. fn returns its
// argument to keep a node unchanged.
func Rewrite(n Node, fn func(Node) (Node, error)) (Node, error) {
	if n == nil {
		return nil, nil
	}
	kids := Children(n)
	if len(kids) > 0 {
		rewritten := make([]Node, len(kids))
		for i, k := range kids {
			r, err := Rewrite(k, fn)
			if err != nil {
				return nil, err
			}
			rewritten[i] = r
		}
		n = WithChildren(n, rewritten)
	}
	return fn(n)
}

// Replace substitutes every occurrence of param in n with with.
func Replace(n Node, param *Parameter, with Node) Node {
	out, _ := Rewrite(n, func(node Node) (Node, error) {
		if node == Node(param) {
			return with, nil
		}
		return node, nil
	})
	return out
}

// Rebind returns l re-expressed over param. When param has a different
// static type than the parameter of l, occurrences are cast to the type l
// was declared on, so member reads keep resolving against that type.
func Rebind(l *Lambda, param *Parameter) *Lambda {
	old := l.Param()
	if old == nil || old == param {
		return l
	}
	var with Node = param
	if old.Typ != param.Typ {
		with = As(param, old.Typ)
	}
	return NewLambda(param, Replace(l.Body, old, with))
}
