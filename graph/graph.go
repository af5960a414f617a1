package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// NodeFunc is the function executed by a node. It reads the current state and
// returns a partial update; the graph merges the update into the state.
type NodeFunc[S, U any] func(context.Context, S) (U, error)

// BranchFunc selects an outgoing label from the current state. It must be pure.
type BranchFunc[S any] func(S) string

// MergeFunc folds a node update into the state and returns the new state.
type MergeFunc[S, U any] func(S, U) S

// Observer is notified after every node execution.
type Observer interface {
	OnNode(ctx context.Context, name string, elapsed time.Duration, err error)
}

// Node represents a node in the execution graph
type Node[S, U any] struct {
	Name      string
	Execute   NodeFunc[S, U]
	MaxVisits int // 0 means the graph default
}

// transition is one row of the transition table. Exactly one of next or branch is set.
type transition[S any] struct {
	next    string
	branch  BranchFunc[S]
	targets map[string]string // branch label -> next node
}

func (t transition[S]) successors() []string {
	if t.branch == nil {
		return []string{t.next}
	}
	seen := make(map[string]struct{}, len(t.targets))
	out := make([]string, 0, len(t.targets))
	for _, target := range t.targets {
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Graph is a validated, immutable workflow definition. Execution is strictly
// sequential: one node runs at a time and its update is merged before the
// transition table picks the next node.
type Graph[S, U any] struct {
	nodes     map[string]*Node[S, U]
	order     []string
	table     map[string]transition[S]
	startNode string
	endNode   string
	merge     MergeFunc[S, U]
	maxVisits int
	observer  Observer
}

// Execute runs the graph from the start node until the end node has executed.
func (g *Graph[S, U]) Execute(ctx context.Context, initial S) (S, error) {
	state := initial
	visited := make(map[string]int, len(g.nodes))
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node := g.nodes[current]
		visited[current]++
		if limit := g.limitFor(node); visited[current] > limit {
			return state, fmt.Errorf("%w: node %s entered %d times (limit %d)", apperr.ErrVisitLimit, current, visited[current], limit)
		}

		update, err := g.run(ctx, node, visited[current], state)
		if err != nil {
			return state, fmt.Errorf("error executing node %s: %w", current, err)
		}
		state = g.merge(state, update)

		if current == g.endNode {
			return state, nil
		}

		next, err := g.resolveNext(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}
}

func (g *Graph[S, U]) run(ctx context.Context, node *Node[S, U], visit int, state S) (U, error) {
	ctx, span := telemetry.Start(ctx, "graph.node/"+node.Name,
		attribute.String("graph.node", node.Name),
		attribute.Int("graph.visit", visit),
	)

	started := time.Now()
	update, err := node.Execute(ctx, state)
	if g.observer != nil {
		g.observer.OnNode(ctx, node.Name, time.Since(started), err)
	}
	telemetry.End(span, err)
	return update, err
}

func (g *Graph[S, U]) resolveNext(current string, state S) (string, error) {
	t := g.table[current]
	if t.branch == nil {
		return t.next, nil
	}
	label := t.branch(state)
	next, ok := t.targets[label]
	if !ok {
		return "", fmt.Errorf("%w: node %s returned %q", apperr.ErrUnknownBranch, current, label)
	}
	return next, nil
}

func (g *Graph[S, U]) limitFor(node *Node[S, U]) int {
	if node.MaxVisits > 0 {
		return node.MaxVisits
	}
	return g.maxVisits
}

// Nodes returns node names in registration order.
func (g *Graph[S, U]) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Successors returns the sorted set of nodes reachable in one step from name.
func (g *Graph[S, U]) Successors(name string) ([]string, error) {
	if _, ok := g.nodes[name]; !ok {
		return nil, fmt.Errorf("node %s: %w", name, apperr.ErrNotFound)
	}
	t, ok := g.table[name]
	if !ok {
		return nil, nil
	}
	return t.successors(), nil
}

// MaxVisits returns the visit bound applied to the named node.
func (g *Graph[S, U]) MaxVisits(name string) int {
	node, ok := g.nodes[name]
	if !ok {
		return 0
	}
	return g.limitFor(node)
}

// Builder helps build graphs fluently. Definition problems are collected and
// reported together by Build.
type Builder[S, U any] struct {
	graph    *Graph[S, U]
	problems []string
}

// NewBuilder creates a new graph builder with the given state reducer.
func NewBuilder[S, U any](merge MergeFunc[S, U]) *Builder[S, U] {
	return &Builder[S, U]{
		graph: &Graph[S, U]{
			nodes:     make(map[string]*Node[S, U]),
			table:     make(map[string]transition[S]),
			merge:     merge,
			maxVisits: 10,
		},
	}
}

func (b *Builder[S, U]) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// AddNode registers a node.
func (b *Builder[S, U]) AddNode(name string, execute NodeFunc[S, U]) *Builder[S, U] {
	switch {
	case name == "":
		b.problem("node name cannot be empty")
		return b
	case execute == nil:
		b.problem("node %s must have non-nil Execute function", name)
		return b
	}
	if _, exists := b.graph.nodes[name]; exists {
		b.problem("node %s already exists", name)
		return b
	}
	b.graph.nodes[name] = &Node[S, U]{Name: name, Execute: execute}
	b.graph.order = append(b.graph.order, name)
	return b
}

// AddEdge connects two nodes unconditionally.
func (b *Builder[S, U]) AddEdge(from, to string) *Builder[S, U] {
	if _, exists := b.graph.table[from]; exists {
		b.problem("node %s already has an outgoing transition", from)
		return b
	}
	b.graph.table[from] = transition[S]{next: to}
	return b
}

// AddBranch connects a node to several targets selected by a branch function.
func (b *Builder[S, U]) AddBranch(from string, branch BranchFunc[S], targets map[string]string) *Builder[S, U] {
	if branch == nil {
		b.problem("branch on node %s must have non-nil function", from)
		return b
	}
	if len(targets) == 0 {
		b.problem("branch on node %s has no targets", from)
		return b
	}
	if _, exists := b.graph.table[from]; exists {
		b.problem("node %s already has an outgoing transition", from)
		return b
	}
	copied := make(map[string]string, len(targets))
	for label, target := range targets {
		copied[label] = target
	}
	b.graph.table[from] = transition[S]{branch: branch, targets: copied}
	return b
}

// BoundLoop caps how many times a node may execute in one run. Every cycle in
// the graph must pass through at least one bounded node.
func (b *Builder[S, U]) BoundLoop(name string, maxVisits int) *Builder[S, U] {
	node, exists := b.graph.nodes[name]
	if !exists {
		b.problem("node %s not found", name)
		return b
	}
	if maxVisits <= 0 {
		b.problem("loop bound for node %s must be positive, got %d", name, maxVisits)
		return b
	}
	node.MaxVisits = maxVisits
	return b
}

// SetStart sets the start node
func (b *Builder[S, U]) SetStart(name string) *Builder[S, U] {
	b.graph.startNode = name
	return b
}

// SetEnd sets the terminal node
func (b *Builder[S, U]) SetEnd(name string) *Builder[S, U] {
	b.graph.endNode = name
	return b
}

// SetMaxVisits sets the default visit bound for nodes without their own
func (b *Builder[S, U]) SetMaxVisits(maxVisits int) *Builder[S, U] {
	if maxVisits > 0 {
		b.graph.maxVisits = maxVisits
	}
	return b
}

// SetObserver installs a hook called after every node execution.
func (b *Builder[S, U]) SetObserver(o Observer) *Builder[S, U] {
	b.graph.observer = o
	return b
}

// Build validates the definition and returns the graph.
func (b *Builder[S, U]) Build() (*Graph[S, U], error) {
	b.validate()
	if len(b.problems) > 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidGraph, strings.Join(b.problems, "; "))
	}
	return b.graph, nil
}

func (b *Builder[S, U]) validate() {
	g := b.graph
	if g.merge == nil {
		b.problem("merge function is required")
	}
	if g.startNode == "" {
		b.problem("start node not set")
	} else if _, ok := g.nodes[g.startNode]; !ok {
		b.problem("start node %s not found", g.startNode)
	}
	if g.endNode == "" {
		b.problem("end node not set")
	} else if _, ok := g.nodes[g.endNode]; !ok {
		b.problem("end node %s not found", g.endNode)
	}
	if len(b.problems) > 0 {
		return
	}

	for from, t := range g.table {
		if _, ok := g.nodes[from]; !ok {
			b.problem("transition from unknown node %s", from)
			continue
		}
		for _, to := range t.successors() {
			if _, ok := g.nodes[to]; !ok {
				b.problem("node %s transitions to unknown node %s", from, to)
			}
		}
	}
	for _, name := range g.order {
		_, has := g.table[name]
		switch {
		case name == g.endNode && has:
			b.problem("end node %s must not have an outgoing transition", name)
		case name != g.endNode && !has:
			b.problem("no next node specified for node %s", name)
		}
	}
	if len(b.problems) > 0 {
		return
	}

	forward := b.reachable(g.startNode, func(n string) []string {
		if t, ok := g.table[n]; ok {
			return t.successors()
		}
		return nil
	})
	reverse := make(map[string][]string)
	for from, t := range g.table {
		for _, to := range t.successors() {
			reverse[to] = append(reverse[to], from)
		}
	}
	backward := b.reachable(g.endNode, func(n string) []string { return reverse[n] })
	for _, name := range g.order {
		if !forward[name] {
			b.problem("node %s is unreachable from start", name)
		}
		if !backward[name] {
			b.problem("end node is unreachable from node %s", name)
		}
	}

	if cycle := b.unboundedCycle(); cycle != nil {
		b.problem("cycle %s has no bounded node", strings.Join(cycle, " -> "))
	}
}

func (b *Builder[S, U]) reachable(from string, next func(string) []string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, n := range next(current) {
			if seen[n] {
				continue
			}
			seen[n] = true
			queue = append(queue, n)
		}
	}
	return seen
}

// unboundedCycle searches the graph with bounded nodes removed; any cycle left
// would let execution loop forever without hitting a visit bound.
func (b *Builder[S, U]) unboundedCycle() []string {
	g := b.graph
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(string) []string
	visit = func(n string) []string {
		color[n] = grey
		path = append(path, n)
		if t, ok := g.table[n]; ok {
			for _, next := range t.successors() {
				if g.nodes[next].MaxVisits > 0 {
					continue
				}
				switch color[next] {
				case grey:
					for i, p := range path {
						if p == next {
							return append(append([]string(nil), path[i:]...), next)
						}
					}
				case white:
					if cycle := visit(next); cycle != nil {
						return cycle
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return nil
	}

	for _, name := range g.order {
		if g.nodes[name].MaxVisits > 0 || color[name] != white {
			continue
		}
		if cycle := visit(name); cycle != nil {
			return cycle
		}
	}
	return nil
}
