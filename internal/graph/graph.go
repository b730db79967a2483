// Package graph builds the causal DAG over treatment, outcome and confounders.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
)

// Edge is a directed cause -> effect arrow
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Edge) String() string { return e.From + " -> " + e.To }

// Node is one variable of the graph. Role is zero for variables that only
// appear through extra edges.
type Node struct {
	Name string             `json:"name"`
	Role causal.Role        `json:"role"`
	Kind dataset.ColumnKind `json:"kind"`
}

// CausalGraph is an immutable DAG. Node and edge order is insertion order:
// treatment, outcome, confounders, then variables introduced by extra edges.
type CausalGraph struct {
	roles    causal.RoleAssignment
	nodes    []Node
	index    map[string]int
	edges    []Edge
	children map[string][]string
	parents  map[string][]string
}

type buildOptions struct {
	extra []Edge
}

// Option customises Build
type Option func(*buildOptions)

// WithEdges declares additional arrows beyond the default confounder structure.
// Endpoints must be dataset columns and the result must stay acyclic. An extra
// edge that reverses a default arrow replaces it, so treatment -> c marks c as
// caused by the treatment.
func WithEdges(edges ...Edge) Option {
	return func(o *buildOptions) { o.extra = append(o.extra, edges...) }
}

// Build creates the graph: every confounder points at treatment and outcome,
// and treatment points at outcome.
func Build(ds *dataset.Dataset, roles causal.RoleAssignment, opts ...Option) (*CausalGraph, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if roles.Treatment.Name == "" || roles.Outcome.Name == "" {
		return nil, core.NewInsufficientRolesError("graph needs both a treatment and an outcome")
	}
	for _, name := range append([]string{roles.Treatment.Name, roles.Outcome.Name}, roles.ConfounderNames()...) {
		if !ds.Has(name) {
			return nil, core.NewInsufficientRolesError(fmt.Sprintf("role column %q is not in dataset %q", name, ds.Name))
		}
	}

	g := &CausalGraph{
		roles:    roles,
		index:    make(map[string]int),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
	g.addNode(roles.Treatment.Name, causal.RoleTreatment, ds)
	g.addNode(roles.Outcome.Name, causal.RoleOutcome, ds)
	for _, c := range roles.Confounders {
		g.addNode(c.Name, causal.RoleConfounder, ds)
	}

	declared := make(map[Edge]bool, len(o.extra))
	for _, e := range o.extra {
		declared[e] = true
	}
	defaultEdge := func(from, to string) {
		if declared[Edge{From: to, To: from}] {
			return
		}
		g.addEdge(from, to)
	}
	for _, c := range roles.Confounders {
		defaultEdge(c.Name, roles.Treatment.Name)
		defaultEdge(c.Name, roles.Outcome.Name)
	}
	defaultEdge(roles.Treatment.Name, roles.Outcome.Name)

	var unknown []string
	for _, e := range o.extra {
		for _, end := range []string{e.From, e.To} {
			if !ds.Has(end) {
				unknown = append(unknown, end)
			}
		}
	}
	if len(unknown) > 0 {
		return nil, core.NewUnknownColumnError(unknown)
	}
	for _, e := range o.extra {
		if e.From == e.To {
			return nil, fmt.Errorf("%w: self-loop on %q", core.ErrCyclicGraph, e.From)
		}
		g.addNode(e.From, 0, ds)
		g.addNode(e.To, 0, ds)
		g.addEdge(e.From, e.To)
	}

	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("%w: %s", core.ErrCyclicGraph, strings.Join(path, " -> "))
	}
	return g, nil
}

func (g *CausalGraph) addNode(name string, role causal.Role, ds *dataset.Dataset) {
	if _, exists := g.index[name]; exists {
		return
	}
	col, _ := ds.Column(name)
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, Node{Name: name, Role: role, Kind: col.Kind})
}

// addEdge ignores duplicates
func (g *CausalGraph) addEdge(from, to string) {
	if contains(g.children[from], to) {
		return
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// Roles returns the assignment the graph was built from
func (g *CausalGraph) Roles() causal.RoleAssignment { return g.roles }

// Treatment returns the treatment variable name
func (g *CausalGraph) Treatment() string { return g.roles.Treatment.Name }

// Outcome returns the outcome variable name
func (g *CausalGraph) Outcome() string { return g.roles.Outcome.Name }

// Nodes returns the nodes in insertion order
func (g *CausalGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in insertion order
func (g *CausalGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of nodes in the graph.
func (g *CausalGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *CausalGraph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether from -> to is in the graph
func (g *CausalGraph) HasEdge(from, to string) bool { return contains(g.children[from], to) }

// Parents returns the direct causes of a node
func (g *CausalGraph) Parents(name string) []string { return append([]string(nil), g.parents[name]...) }

// Children returns the direct effects of a node
func (g *CausalGraph) Children(name string) []string { return append([]string(nil), g.children[name]...) }

// Descendants returns every node reachable from name, sorted
func (g *CausalGraph) Descendants(name string) []string {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, child := range g.children[id] {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	walk(name)
	return sortedKeys(seen)
}

// IsDescendant reports whether target is reachable from name
func (g *CausalGraph) IsDescendant(target, name string) bool {
	for _, d := range g.Descendants(name) {
		if d == target {
			return true
		}
	}
	return false
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *CausalGraph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.children[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, n := range g.nodes {
		if !visited[n.Name] {
			if dfs(n.Name) {
				return true, cyclePath
			}
		}
	}
	return false, nil
}

// TopologicalOrder returns node names with causes before effects; ties keep insertion order
func (g *CausalGraph) TopologicalOrder() []string {
	visited := make(map[string]bool)
	out := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, p := range g.parents[id] {
			visit(p)
		}
		out = append(out, id)
	}
	for _, n := range g.nodes {
		visit(n.Name)
	}
	return out
}

// DOT renders the graph in Graphviz syntax for an external renderer.
// Nodes are listed causes first.
func (g *CausalGraph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph causal {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, name := range g.TopologicalOrder() {
		n := g.nodes[g.index[name]]
		fmt.Fprintf(&b, "  %q [%s];\n", n.Name, nodeStyle(n.Role))
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
	}
	b.WriteString("}\n")
	return b.String()
}

func nodeStyle(role causal.Role) string {
	switch role {
	case causal.RoleTreatment:
		return `shape=box, style=filled, fillcolor="#cfe2ff"`
	case causal.RoleOutcome:
		return `shape=box, style=filled, fillcolor="#d1e7dd"`
	case causal.RoleConfounder:
		return "shape=ellipse"
	default:
		return "shape=ellipse, style=dashed"
	}
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
