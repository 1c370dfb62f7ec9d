package translation

import (
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/queryir"
)

// InlineQuery inlines every expression of q. The result reads only stored
// fields and can be handed to a backend compiler; q is not modified.
func (m *Map) InlineQuery(q *queryir.Select) (*queryir.Select, error) {
	return q.Map(func(n expr.Node) (expr.Node, error) {
		return m.Inline(n)
	})
}
