package parity

import (
	"fmt"
	"math"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/metrics"
)

// node is one state reached at one row. Nodes live in a single arena keyed
// by row key and state key; edges refer to successors by key only.
type node struct {
	key   string
	state *State

	// succ lists successor keys in action order. It is valid for the row
	// whose key is succRow.
	succ    []string
	succRow string

	// edges holds the cost to each successor, valid for succRow and the
	// weights version edgeVer.
	edges   map[string]Cost
	edgeVer uint64

	cum    float64
	parent string
	togo   float64
}

func nodeKey(row *Row, s *State) string {
	return row.Key + "#" + s.Key
}

// arena owns every node of the search graph.
type arena struct {
	nodes  map[string]*node
	start  *node
	layers [][]string
}

func newArena() *arena {
	return &arena{nodes: make(map[string]*node)}
}

func (a *arena) get(key string) (*node, error) {
	n, ok := a.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%w: node %s missing from arena", ErrInvariant, key)
	}
	return n, nil
}

// parents returns the layer feeding row i.
func (a *arena) parents(i int) []string {
	if i == 0 {
		return []string{a.start.key}
	}
	return a.layers[i-1]
}

func (a *arena) edgeCount() int {
	n := 0
	for _, nd := range a.nodes {
		n += len(nd.edges)
	}
	return n
}

// stateStage regenerates layers from row `from` onwards. Layers before
// `from` are kept. Once a regenerated layer in the unchanged tail matches
// the old layer for the same row, the rest of the old layers are reused.
// It returns the keys of nodes created.
type stateStage struct {
	layout  *layout.Layout
	actions *ActionCache
}

func (st stateStage) run(a *arena, rows []Row, from int, diff RowDiff, oldLayers [][]string) ([]string, error) {
	layers := make([][]string, len(rows))
	copy(layers, a.layers[:min(from, len(a.layers), len(rows))])
	a.layers = layers
	shift := len(oldLayers) - len(rows)

	var created []string
	for i := from; i < len(rows); i++ {
		if prev := i - 1; prev > diff.Last && prev >= 0 {
			old := prev + shift
			if old >= 0 && old < len(oldLayers) && equalKeys(layers[prev], oldLayers[old]) {
				copy(layers[i:], oldLayers[old+1:])
				break
			}
		}

		row := &rows[i]
		var layer []string
		seen := make(map[string]bool)
		for _, pk := range a.parents(i) {
			p, err := a.get(pk)
			if err != nil {
				return created, err
			}
			if !st.succValid(a, p, row) {
				created = st.expand(a, p, row, created)
			}
			for _, nk := range p.succ {
				if !seen[nk] {
					seen[nk] = true
					layer = append(layer, nk)
				}
			}
		}
		if len(layer) == 0 {
			return created, fmt.Errorf("%w: row %d (beat %v) has no states", ErrInvariant, i, row.Beat)
		}
		layers[i] = layer
	}
	return created, nil
}

func (st stateStage) succValid(a *arena, p *node, row *Row) bool {
	if p.succRow != row.Key || len(p.succ) == 0 {
		return false
	}
	for _, nk := range p.succ {
		if _, ok := a.nodes[nk]; !ok {
			return false
		}
	}
	return true
}

func (st stateStage) expand(a *arena, p *node, row *Row, created []string) []string {
	acts := st.actions.Actions(row)
	p.succ = p.succ[:0]
	p.succRow = row.Key
	p.edges = nil
	for _, act := range acts {
		s := advance(st.layout, p.state, row, act)
		nk := nodeKey(row, s)
		if _, ok := a.nodes[nk]; ok {
			metrics.NodeCache.Hit()
		} else {
			metrics.NodeCache.Miss()
			a.nodes[nk] = &node{key: nk, state: s}
			created = append(created, nk)
		}
		p.succ = append(p.succ, nk)
	}
	return created
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// costStage fills the edges of every parent of rows[from:] whose cached
// edges are stale. It returns the number of edges computed.
func costStage(a *arena, calc *CostCalculator, version uint64, rows []Row, from int) (int, error) {
	computed := 0
	for i := max(from, 0); i < len(rows); i++ {
		for _, pk := range a.parents(i) {
			p, err := a.get(pk)
			if err != nil {
				return computed, err
			}
			if p.edges != nil && p.edgeVer == version && p.succRow == rows[i].Key {
				metrics.EdgeCache.Hit()
				continue
			}
			metrics.EdgeCache.Miss()
			p.edges = make(map[string]Cost, len(p.succ))
			p.edgeVer = version
			for _, nk := range p.succ {
				n, err := a.get(nk)
				if err != nil {
					return computed, err
				}
				p.edges[nk] = calc.ActionCost(p.state, n.state, rows, i)
				computed++
			}
		}
	}
	return computed, nil
}

// pathStage runs the forward pass over rows[from:]. Cumulative costs of
// earlier layers are reused.
func pathStage(a *arena, rows []Row, from int) error {
	a.start.cum = 0
	a.start.parent = ""
	for i := max(from, 0); i < len(rows); i++ {
		for _, nk := range a.layers[i] {
			n, err := a.get(nk)
			if err != nil {
				return err
			}
			n.cum = math.Inf(1)
			n.parent = ""
		}
		for _, pk := range a.parents(i) {
			p, err := a.get(pk)
			if err != nil {
				return err
			}
			for _, nk := range p.succ {
				c, ok := p.edges[nk]
				if !ok {
					return fmt.Errorf("%w: edge %s -> %s missing", ErrInvariant, pk, nk)
				}
				n := a.nodes[nk]
				if total := p.cum + c.Total; total < n.cum {
					n.cum = total
					n.parent = pk
				}
			}
		}
	}
	return nil
}

// backtrack walks parent pointers from the cheapest final node.
func backtrack(a *arena) ([]*node, error) {
	if len(a.layers) == 0 {
		return nil, nil
	}
	var best *node
	for _, nk := range a.layers[len(a.layers)-1] {
		n, err := a.get(nk)
		if err != nil {
			return nil, err
		}
		if best == nil || n.cum < best.cum {
			best = n
		}
	}
	if best == nil || math.IsInf(best.cum, 1) {
		return nil, ErrNoPath
	}

	path := make([]*node, len(a.layers))
	n := best
	for i := len(a.layers) - 1; i >= 0; i-- {
		path[i] = n
		if n.parent == "" {
			return nil, fmt.Errorf("%w: broken parent chain at row %d", ErrInvariant, i)
		}
		p, err := a.get(n.parent)
		if err != nil {
			return nil, err
		}
		n = p
	}
	if n != a.start {
		return nil, fmt.Errorf("%w: path does not reach the start node", ErrInvariant)
	}
	return path, nil
}

// togoStage computes the cheapest cost from every node to the end.
func togoStage(a *arena) {
	for i := len(a.layers) - 1; i >= 0; i-- {
		for _, nk := range a.layers[i] {
			n := a.nodes[nk]
			if i == len(a.layers)-1 {
				n.togo = 0
			}
		}
		for _, pk := range a.parents(i) {
			p := a.nodes[pk]
			p.togo = math.Inf(1)
			for _, nk := range p.succ {
				if t := p.edges[nk].Total + a.nodes[nk].togo; t < p.togo {
					p.togo = t
				}
			}
		}
	}
}

// prune drops every node not in a current layer.
func prune(a *arena) int {
	live := make(map[string]bool, len(a.nodes))
	if a.start != nil {
		live[a.start.key] = true
	}
	for _, layer := range a.layers {
		for _, k := range layer {
			live[k] = true
		}
	}
	removed := 0
	for k := range a.nodes {
		if !live[k] {
			delete(a.nodes, k)
			removed++
		}
	}
	return removed
}
