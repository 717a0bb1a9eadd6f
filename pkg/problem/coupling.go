package problem

import (
	"fmt"

	"github.com/heimdalr/dag"

	"github.com/symopt/symopt/pkg/index"
)

// Coupling captures the data flow between sub-problems: an edge p -> q means
// q consumes a table that p produces. Mutually feeding sub-problems make the
// model coupled, which the integrated solve loop resolves by fixed-point
// iteration.
type Coupling struct {
	dag     *dag.DAG
	order   []string
	coupled bool
}

// Coupling builds the sub-problem dependency graph from the per-sub-problem
// table types.
func (w *Workspace) Coupling() (*Coupling, error) {
	c := &Coupling{dag: dag.NewDAG()}

	for _, decl := range w.cat.Problems() {
		c.order = append(c.order, decl.Name)

		if err := c.dag.AddVertexByID(decl.Name, decl.Name); err != nil {
			return nil, fmt.Errorf("adding sub-problem %q: %w", decl.Name, err)
		}
	}

	for _, table := range w.cat.Tables() {
		producers := table.Type.SubProblemsWith(index.TypeEndogenous)
		consumers := table.Type.SubProblemsWith(index.TypeExogenous)

		for _, producer := range producers {
			for _, consumer := range consumers {
				if producer == consumer {
					continue
				}

				if exists, _ := c.dag.IsEdge(producer, consumer); exists {
					continue
				}

				// AddEdge rejects edges that would close a cycle;
				// a rejected edge is exactly what marks the model
				// as coupled.
				if err := c.dag.AddEdge(producer, consumer); err != nil {
					c.coupled = true
				}
			}
		}
	}

	return c, nil
}

// IsCoupled reports whether the sub-problems feed each other, requiring
// iterative solving.
func (c *Coupling) IsCoupled() bool {
	return c.coupled
}

// Order returns the sub-problem names in declaration order, which is the
// solve order.
func (c *Coupling) Order() []string {
	return append([]string(nil), c.order...)
}

// Consumers returns the sub-problems directly consuming the given one's
// results.
func (c *Coupling) Consumers(sub string) []string {
	children, err := c.dag.GetChildren(sub)
	if err != nil {
		return nil
	}

	out := make([]string, 0, len(children))
	for id := range children {
		out = append(out, id)
	}

	return out
}
