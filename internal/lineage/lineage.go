// Package lineage records the ancestry of a particle population as a
// directed graph, one node per particle per generation and one edge from
// each particle to its parent's child.
//
// [Graph] satisfies smc.LineageRecorder and can be exported as Graphviz DOT.
package lineage

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

var ErrNoGeneration = errors.New("lineage: generation not recorded")

type node struct {
	id  int64
	gen int
	idx int
}

func (n node) ID() int64 { return n.id }

func (n node) DOTID() string { return fmt.Sprintf("g%d_p%d", n.gen, n.idx) }

func (n node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: fmt.Sprint(n.idx)}}
}

type Graph struct {
	g      *simple.DirectedGraph
	gens   [][]int64
	nextID int64
}

func New() *Graph {
	return &Graph{g: simple.NewDirectedGraph()}
}

// Record adds generation g. Recording a generation that already exists
// replaces it and everything after it.
func (l *Graph) Record(g, n int, parents []int) {
	if g < len(l.gens) {
		l.Rewind(g - 1)
	}
	if g != len(l.gens) {
		return
	}

	var prev []int64
	if g > 0 {
		prev = l.gens[g-1]
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		nd := node{id: l.nextID, gen: g, idx: i}
		l.nextID++
		l.g.AddNode(nd)
		ids[i] = nd.id

		if prev == nil {
			continue
		}
		p := i
		if parents != nil {
			p = parents[i]
		}
		if p >= 0 && p < len(prev) {
			l.g.SetEdge(l.g.NewEdge(l.g.Node(prev[p]), nd))
		}
	}
	l.gens = append(l.gens, ids)
}

// Rewind removes every generation after g.
func (l *Graph) Rewind(g int) {
	for len(l.gens) > g+1 && len(l.gens) > 0 {
		last := l.gens[len(l.gens)-1]
		for _, id := range last {
			l.g.RemoveNode(id)
		}
		l.gens = l.gens[:len(l.gens)-1]
	}
}

func (l *Graph) Generations() int { return len(l.gens) }

// Size is the number of particles recorded for generation g.
func (l *Graph) Size(g int) int {
	if g < 0 || g >= len(l.gens) {
		return 0
	}
	return len(l.gens[g])
}

// Parent is the index in generation g-1 of particle i's parent.
func (l *Graph) Parent(g, i int) (int, error) {
	if g <= 0 || g >= len(l.gens) || i < 0 || i >= len(l.gens[g]) {
		return 0, fmt.Errorf("%w: particle %d of generation %d", ErrNoGeneration, i, g)
	}
	parents := graph.NodesOf(l.g.To(l.gens[g][i]))
	if len(parents) == 0 {
		return 0, fmt.Errorf("%w: particle %d of generation %d has no parent", ErrNoGeneration, i, g)
	}
	return parents[0].(node).idx, nil
}

// Ancestor follows particle i of generation g back to generation back.
func (l *Graph) Ancestor(g, i, back int) (int, error) {
	for ; g > back; g-- {
		p, err := l.Parent(g, i)
		if err != nil {
			return 0, err
		}
		i = p
	}
	return i, nil
}

// Surviving counts the distinct particles of generation g that still have
// descendants in the latest generation.
func (l *Graph) Surviving(g int) (int, error) {
	last := len(l.gens) - 1
	if g < 0 || g > last {
		return 0, fmt.Errorf("%w: %d", ErrNoGeneration, g)
	}
	seen := make(map[int]struct{})
	for i := range l.gens[last] {
		a, err := l.Ancestor(last, i, g)
		if err != nil {
			return 0, err
		}
		seen[a] = struct{}{}
	}
	return len(seen), nil
}

// DOT renders the lineage graph.
func (l *Graph) DOT(name string) ([]byte, error) {
	return dot.Marshal(l.g, name, "", "  ")
}

func (l *Graph) WriteDOT(path, name string) error {
	data, err := l.DOT(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
