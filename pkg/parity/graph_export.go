package parity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/vanderheijden86/stepparity/pkg/debug"
)

// SearchGraph is the current search DAG as a gonum weighted graph. A virtual
// sink follows every node of the final row with zero-cost edges.
type SearchGraph struct {
	Graph *simple.WeightedDirectedGraph
	Start graph.Node
	Sink  graph.Node

	keys map[int64]string
	ids  map[string]int64
}

// SearchGraph exports the layered graph of the last compute.
func (e *Engine) SearchGraph() (*SearchGraph, error) {
	a := e.graph
	if a.start == nil || len(a.layers) == 0 {
		return nil, fmt.Errorf("%w: nothing computed", ErrNoPath)
	}

	g := simple.NewWeightedDirectedGraph(0, 0)
	sg := &SearchGraph{
		Graph: g,
		keys:  make(map[int64]string),
		ids:   make(map[string]int64),
	}
	add := func(key string) graph.Node {
		n := g.NewNode()
		g.AddNode(n)
		sg.keys[n.ID()] = key
		sg.ids[key] = n.ID()
		return n
	}

	sg.Start = add(a.start.key)
	for _, layer := range a.layers {
		for _, k := range layer {
			add(k)
		}
	}
	sg.Sink = add("sink")

	for i := range a.layers {
		for _, pk := range a.parents(i) {
			p := a.nodes[pk]
			from := g.Node(sg.ids[pk])
			for _, nk := range p.succ {
				c, ok := p.edges[nk]
				if !ok {
					return nil, fmt.Errorf("%w: edge %s -> %s missing", ErrInvariant, pk, nk)
				}
				g.SetWeightedEdge(g.NewWeightedEdge(from, g.Node(sg.ids[nk]), c.Total))
			}
		}
	}
	for _, k := range a.layers[len(a.layers)-1] {
		g.SetWeightedEdge(g.NewWeightedEdge(g.Node(sg.ids[k]), sg.Sink, 0))
	}
	return sg, nil
}

// Key returns the node key for a gonum node id.
func (sg *SearchGraph) Key(id int64) string { return sg.keys[id] }

// ShortestPath runs Dijkstra from the start node to the sink and returns the
// node keys along the way (excluding start and sink) with the total cost.
func (sg *SearchGraph) ShortestPath() ([]string, float64) {
	shortest := path.DijkstraFrom(sg.Start, sg.Graph)
	nodes, weight := shortest.To(sg.Sink.ID())
	var keys []string
	for _, n := range nodes {
		if n.ID() == sg.Start.ID() || n.ID() == sg.Sink.ID() {
			continue
		}
		keys = append(keys, sg.keys[n.ID()])
	}
	return keys, weight
}

// Order returns the node keys in a topological order. It fails if the graph
// has a cycle.
func (sg *SearchGraph) Order() ([]string, error) {
	sorted, err := topo.Sort(sg.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: search graph is not acyclic: %v", ErrInvariant, err)
	}
	keys := make([]string, len(sorted))
	for i, n := range sorted {
		keys[i] = sg.keys[n.ID()]
	}
	return keys, nil
}

// GraphCheck cross-checks the dynamic programming result against the
// exported graph: the graph must be acyclic and Dijkstra must find the same
// best cost.
type GraphCheck struct {
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	Acyclic      bool    `json:"acyclic"`
	ShortestCost float64 `json:"shortestCost"`
	PathCost     float64 `json:"pathCost"`
	CostAgrees   bool    `json:"costAgrees"`
	Error        string  `json:"error,omitempty"`
}

// CheckGraph exports the search graph of the last compute and verifies it.
func (e *Engine) CheckGraph() GraphCheck {
	var gc GraphCheck
	if e.last == nil {
		gc.Error = "nothing computed"
		return gc
	}
	gc.PathCost = e.last.Cost

	sg, err := e.SearchGraph()
	if err != nil {
		gc.Error = err.Error()
		return gc
	}
	gc.Nodes = sg.Graph.Nodes().Len()
	gc.Edges = sg.Graph.Edges().Len()
	if _, err := sg.Order(); err != nil {
		gc.Error = err.Error()
		return gc
	}
	gc.Acyclic = true

	_, gc.ShortestCost = sg.ShortestPath()
	gc.CostAgrees = math.Abs(gc.ShortestCost-gc.PathCost) <= 1e-6*math.Max(1, math.Abs(gc.PathCost))
	if !gc.CostAgrees {
		debug.Log("graph check: dijkstra cost %.6f, path cost %.6f", gc.ShortestCost, gc.PathCost)
	}
	return gc
}
