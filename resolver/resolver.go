// Package resolver produces a safe installation order from the declared
// dependency DAG and rejects cycles (spec.md §4.7, "Dependency Resolver").
//
// The graph is an arena — a slice of nodes plus a name→index map, edges
// are index pairs — rather than a pointer graph with per-node owned arrays,
// per spec.md §9's design note: this erases the quadratic name-lookup scan
// and yields O(V+E) topological sort.
package resolver

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"srcpkg/definition"
	"srcpkg/pklog"
)

// maxConcurrentLoads bounds how many catalog entries are loaded in
// parallel while building the graph, generalizing the teacher's bulk.go
// worker-pool fan-out to the resolver's load step.
const maxConcurrentLoads = 8

// DefinitionLoader loads one PackageDefinition by name. definition.Loader
// satisfies this; tests may substitute a fixture loader.
type DefinitionLoader interface {
	Load(name string) (*definition.PackageDefinition, error)
}

// node is one arena entry: a package name and the (declared, not
// build_dependencies) names it depends on.
type node struct {
	name         string
	dependencies []string
}

// graph is the transient DependencyGraph of spec.md §3: a vector of nodes
// plus a name→index map.
type graph struct {
	nodes []node
	index map[string]int
}

// Resolver builds dependency graphs by loading catalog entries through a
// DefinitionLoader.
type Resolver struct {
	Loader DefinitionLoader
	Logger pklog.LibraryLogger
}

// New builds a Resolver over loader.
func New(loader DefinitionLoader, logger pklog.LibraryLogger) *Resolver {
	if logger == nil {
		logger = pklog.NoOpLogger{}
	}
	return &Resolver{Loader: loader, Logger: logger}
}

// buildGraph loads rootName and recursively every declared `dependencies`
// entry (never build_dependencies — those are host prerequisites per
// spec.md §9's Open Question decision), level by level, bounding
// concurrent loads to maxConcurrentLoads via errgroup.
func (r *Resolver) buildGraph(ctx context.Context, rootName string) (*graph, error) {
	g := &graph{index: make(map[string]int)}

	var mu sync.Mutex
	visited := map[string]bool{rootName: true}
	frontier := []string{rootName}

	for len(frontier) > 0 {
		type loaded struct {
			def *definition.PackageDefinition
			err error
		}
		results := make([]loaded, len(frontier))

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(maxConcurrentLoads)
		for i, name := range frontier {
			i, name := i, name
			eg.Go(func() error {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				default:
				}
				def, err := r.Loader.Load(name)
				results[i] = loaded{def: def, err: err}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for i, name := range frontier {
			res := results[i]
			if res.err != nil {
				return nil, res.err
			}

			mu.Lock()
			g.index[name] = len(g.nodes)
			g.nodes = append(g.nodes, node{name: name, dependencies: res.def.Dependencies})
			mu.Unlock()

			for _, dep := range res.def.Dependencies {
				if !visited[dep] {
					visited[dep] = true
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	return g, nil
}

// Resolve builds the dependency graph rooted at name and returns a
// topologically sorted install order ending with name itself (spec.md
// §4.7). Tie-breaking is deterministic: ascending name within a batch of
// simultaneously-ready nodes.
func (r *Resolver) Resolve(ctx context.Context, name string) ([]string, error) {
	g, err := r.buildGraph(ctx, name)
	if err != nil {
		return nil, err
	}
	return topoSort(g)
}

// topoSort runs Kahn's algorithm over the arena graph: edges point from a
// dependency to its dependent (the precedence direction), so in-degree is
// simply len(node.dependencies) and zero-in-degree nodes are leaves with
// no further dependencies — exactly the packages safe to build first.
func topoSort(g *graph) ([]string, error) {
	n := len(g.nodes)
	inDegree := make([]int, n)
	dependents := make([][]int, n) // dependents[i] = indices of nodes that depend on node i

	for i, nd := range g.nodes {
		for _, depName := range nd.dependencies {
			depIdx, ok := g.index[depName]
			if !ok {
				continue
			}
			inDegree[i]++
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	sortByName(queue, g)

	order := make([]string, 0, n)
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[idx].name)

		var newlyReady []int
		for _, depIdx := range dependents[idx] {
			inDegree[depIdx]--
			if inDegree[depIdx] == 0 {
				newlyReady = append(newlyReady, depIdx)
			}
		}
		sortByName(newlyReady, g)
		queue = append(queue, newlyReady...)
	}

	if len(order) != n {
		ordered := make(map[string]bool, len(order))
		for _, name := range order {
			ordered[name] = true
		}
		var remaining []string
		for _, nd := range g.nodes {
			if !ordered[nd.name] {
				remaining = append(remaining, nd.name)
			}
		}
		return order, &CycleError{TotalPackages: n, OrderedPackages: len(order), Remaining: remaining}
	}

	return order, nil
}

func sortByName(indices []int, g *graph) {
	sort.Slice(indices, func(i, j int) bool {
		return g.nodes[indices[i]].name < g.nodes[indices[j]].name
	})
}
