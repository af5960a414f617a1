package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

// counter state used by the tests: a trail of visited nodes plus a number.
type counter struct {
	Trail []string
	N     int
}

type delta struct {
	Node string
	Add  int
}

func apply(s counter, d delta) counter {
	next := counter{N: s.N + d.Add}
	next.Trail = append(append([]string(nil), s.Trail...), d.Node)
	return next
}

func emit(name string, add int) NodeFunc[counter, delta] {
	return func(context.Context, counter) (delta, error) {
		return delta{Node: name, Add: add}, nil
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	nodes []string
}

func (r *recordingObserver) OnNode(_ context.Context, name string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, name)
}

func TestLinearExecution(t *testing.T) {
	obs := &recordingObserver{}
	g, err := NewBuilder[counter, delta](apply).
		AddNode("a", emit("a", 1)).
		AddNode("b", emit("b", 2)).
		AddNode("c", emit("c", 3)).
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetStart("a").
		SetEnd("c").
		SetObserver(obs).
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	out, err := g.Execute(context.Background(), counter{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.N != 6 {
		t.Errorf("expected N=6, got %d", out.N)
	}
	if strings.Join(out.Trail, ",") != "a,b,c" {
		t.Errorf("unexpected trail %v", out.Trail)
	}
	if strings.Join(obs.nodes, ",") != "a,b,c" {
		t.Errorf("observer saw %v", obs.nodes)
	}
}

func TestBranchSelectsTarget(t *testing.T) {
	build := func(label string) *Graph[counter, delta] {
		g, err := NewBuilder[counter, delta](apply).
			AddNode("start", emit("start", 0)).
			AddNode("left", emit("left", 1)).
			AddNode("right", emit("right", 2)).
			AddNode("end", emit("end", 0)).
			AddBranch("start", func(counter) string { return label }, map[string]string{
				"l": "left",
				"r": "right",
			}).
			AddEdge("left", "end").
			AddEdge("right", "end").
			SetStart("start").
			SetEnd("end").
			Build()
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		return g
	}

	out, err := build("r").Execute(context.Background(), counter{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if strings.Join(out.Trail, ",") != "start,right,end" {
		t.Fatalf("unexpected trail %v", out.Trail)
	}

	_, err = build("x").Execute(context.Background(), counter{})
	if !errors.Is(err, apperr.ErrUnknownBranch) {
		t.Fatalf("expected ErrUnknownBranch, got %v", err)
	}
}

func TestBoundedLoop(t *testing.T) {
	loop := func(bound int, exitAt int) (*Graph[counter, delta], error) {
		return NewBuilder[counter, delta](apply).
			AddNode("work", emit("work", 1)).
			AddNode("done", emit("done", 0)).
			AddBranch("work", func(s counter) string {
				if s.N >= exitAt {
					return "exit"
				}
				return "again"
			}, map[string]string{"again": "work", "exit": "done"}).
			BoundLoop("work", bound).
			SetStart("work").
			SetEnd("done").
			Build()
	}

	g, err := loop(3, 3)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	out, err := g.Execute(context.Background(), counter{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out.N != 3 {
		t.Fatalf("expected 3 iterations, got %d", out.N)
	}
	if g.MaxVisits("work") != 3 || g.MaxVisits("done") != 10 {
		t.Fatalf("unexpected visit bounds %d %d", g.MaxVisits("work"), g.MaxVisits("done"))
	}

	g, err = loop(2, 5)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	out, err = g.Execute(context.Background(), counter{})
	if !errors.Is(err, apperr.ErrVisitLimit) {
		t.Fatalf("expected ErrVisitLimit, got %v", err)
	}
	if out.N != 2 {
		t.Fatalf("state should reflect completed visits, got %d", out.N)
	}
}

func TestNodeErrorStopsExecution(t *testing.T) {
	boom := errors.New("boom")
	g, err := NewBuilder[counter, delta](apply).
		AddNode("a", func(context.Context, counter) (delta, error) { return delta{}, boom }).
		AddNode("b", emit("b", 1)).
		AddEdge("a", "b").
		SetStart("a").
		SetEnd("b").
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	_, err = g.Execute(context.Background(), counter{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped node error, got %v", err)
	}
	if !strings.Contains(err.Error(), "node a") {
		t.Fatalf("error should name the node: %v", err)
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	g, err := NewBuilder[counter, delta](apply).
		AddNode("a", emit("a", 1)).
		SetStart("a").
		SetEnd("a").
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Execute(ctx, counter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name  string
		build func() *Builder[counter, delta]
		want  string
	}{
		{
			name: "empty node name",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).AddNode("", emit("", 0)).
					AddNode("a", emit("a", 0)).SetStart("a").SetEnd("a")
			},
			want: "node name cannot be empty",
		},
		{
			name: "duplicate node",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).AddNode("a", emit("a", 0)).
					AddNode("a", emit("a", 0)).SetStart("a").SetEnd("a")
			},
			want: "node a already exists",
		},
		{
			name: "missing start",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).AddNode("a", emit("a", 0)).SetEnd("a")
			},
			want: "start node not set",
		},
		{
			name: "unknown end",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).AddNode("a", emit("a", 0)).SetStart("a").SetEnd("z")
			},
			want: "end node z not found",
		},
		{
			name: "unknown target",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).
					AddEdge("a", "z").SetStart("a").SetEnd("b")
			},
			want: "node a transitions to unknown node z",
		},
		{
			name: "dangling node",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).AddNode("c", emit("c", 0)).
					AddEdge("a", "c").AddEdge("b", "c").SetStart("a").SetEnd("c")
			},
			want: "node b is unreachable from start",
		},
		{
			name: "no outgoing transition",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).SetStart("a").SetEnd("b")
			},
			want: "no next node specified for node a",
		},
		{
			name: "end with transition",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).
					AddEdge("a", "b").AddEdge("b", "a").SetStart("a").SetEnd("b")
			},
			want: "end node b must not have an outgoing transition",
		},
		{
			name: "two transitions",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).
					AddEdge("a", "b").AddEdge("a", "b").SetStart("a").SetEnd("b")
			},
			want: "node a already has an outgoing transition",
		},
		{
			name: "end unreachable",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).AddNode("c", emit("c", 0)).
					AddBranch("a", func(counter) string { return "x" }, map[string]string{"x": "b", "y": "c"}).
					AddEdge("b", "b").SetStart("a").SetEnd("c")
			},
			want: "end node is unreachable from node b",
		},
		{
			name: "unbounded cycle",
			build: func() *Builder[counter, delta] {
				return NewBuilder[counter, delta](apply).
					AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).AddNode("c", emit("c", 0)).
					AddEdge("a", "b").
					AddBranch("b", func(counter) string { return "c" }, map[string]string{"a": "a", "c": "c"}).
					SetStart("a").SetEnd("c")
			},
			want: "has no bounded node",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			if !errors.Is(err, apperr.ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestBoundedCycleIsAccepted(t *testing.T) {
	_, err := NewBuilder[counter, delta](apply).
		AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).AddNode("c", emit("c", 0)).
		AddEdge("a", "b").
		AddBranch("b", func(counter) string { return "c" }, map[string]string{"a": "a", "c": "c"}).
		BoundLoop("a", 2).
		SetStart("a").SetEnd("c").
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
}

func TestSuccessors(t *testing.T) {
	g, err := NewBuilder[counter, delta](apply).
		AddNode("a", emit("a", 0)).AddNode("b", emit("b", 0)).AddNode("c", emit("c", 0)).
		AddBranch("a", func(counter) string { return "1" }, map[string]string{"1": "c", "2": "b", "3": "c"}).
		AddEdge("b", "c").
		SetStart("a").SetEnd("c").
		Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	got, err := g.Successors("a")
	if err != nil {
		t.Fatalf("Successors returned error: %v", err)
	}
	if strings.Join(got, ",") != "b,c" {
		t.Fatalf("expected deduplicated sorted successors, got %v", got)
	}
	if _, err := g.Successors("zz"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if strings.Join(g.Nodes(), ",") != "a,b,c" {
		t.Fatalf("unexpected nodes %v", g.Nodes())
	}
}
