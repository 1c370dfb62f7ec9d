package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/calcx/internal/ir"
)

// Format renders n as a single deterministic line. Two trees with the same
// rendering are structurally equal up to parameter identity.
func Format(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Parameter:
		b.WriteString(n.Name)
	case *Constant:
		writeConstant(b, n)
	case *PropertyRead:
		write(b, n.Target)
		b.WriteByte('.')
		b.WriteString(n.Member)
	case *MethodCall:
		if n.Target != nil {
			write(b, n.Target)
			b.WriteByte('.')
		}
		b.WriteString(n.Method)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			write(b, a)
		}
		b.WriteByte(')')
	case *Conditional:
		b.WriteByte('(')
		write(b, n.Test)
		b.WriteString(" ? ")
		write(b, n.IfTrue)
		b.WriteString(" : ")
		write(b, n.IfFalse)
		b.WriteByte(')')
	case *TypeTest:
		b.WriteByte('(')
		write(b, n.Target)
		b.WriteString(" is ")
		b.WriteString(n.Test.Name)
		b.WriteByte(')')
	case *Convert:
		b.WriteString("((")
		b.WriteString(n.To.Name)
		b.WriteByte(')')
		write(b, n.Target)
		b.WriteByte(')')
	case *Lambda:
		names := make([]string, len(n.Params))
		for i, p := range n.Params {
			names[i] = p.Name
		}
		if len(names) == 1 {
			b.WriteString(names[0])
		} else {
			b.WriteString("(" + strings.Join(names, ", ") + ")")
		}
		b.WriteString(" => ")
		write(b, n.Body)
	case *Binary:
		b.WriteByte('(')
		write(b, n.Left)
		b.WriteString(" " + string(n.Op) + " ")
		write(b, n.Right)
		b.WriteByte(')')
	case *NoTranslate:
		b.WriteString("raw(")
		write(b, n.Target)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func writeConstant(b *strings.Builder, c *Constant) {
	if c.Typ.IsEnum() {
		if n, ok := c.Value.(ir.IRInt); ok {
			if v, ok := c.Typ.ValueOf(int64(n)); ok {
				b.WriteString(c.Typ.Name + "." + v.Name)
				return
			}
			fmt.Fprintf(b, "%s(%d)", c.Typ.Name, int64(n))
			return
		}
	}
	b.WriteString(ir.Format(c.Value))
}
