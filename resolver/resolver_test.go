package resolver

import (
	"context"
	"testing"

	"srcpkg/definition"
)

type fixtureLoader struct {
	defs map[string]*definition.PackageDefinition
}

func (f *fixtureLoader) Load(name string) (*definition.PackageDefinition, error) {
	def, ok := f.defs[name]
	if !ok {
		return nil, &notFound{name}
	}
	return def, nil
}

type notFound struct{ name string }

func (e *notFound) Error() string { return "not found: " + e.name }

func def(name string, deps ...string) *definition.PackageDefinition {
	return &definition.PackageDefinition{Name: name, Version: "1.0.0", SourceURL: "https://x", Dependencies: deps}
}

func TestResolve_LinearChain(t *testing.T) {
	loader := &fixtureLoader{defs: map[string]*definition.PackageDefinition{
		"A": def("A", "B"),
		"B": def("B", "C"),
		"C": def("C"),
	}}
	r := New(loader, nil)

	order, err := r.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries", order)
	}
	if order[len(order)-1] != "A" {
		t.Errorf("last element = %s, want A", order[len(order)-1])
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["C"] > pos["B"] || pos["B"] > pos["A"] {
		t.Errorf("order %v does not respect C before B before A", order)
	}
}

func TestResolve_RejectsCycle(t *testing.T) {
	loader := &fixtureLoader{defs: map[string]*definition.PackageDefinition{
		"X": def("X", "Y"),
		"Y": def("Y", "X"),
	}}
	r := New(loader, nil)

	_, err := r.Resolve(context.Background(), "X")
	if err == nil {
		t.Fatal("expected CycleError")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Errorf("expected *CycleError, got %T", err)
	}
}

func TestResolve_EachNameAtMostOnce(t *testing.T) {
	loader := &fixtureLoader{defs: map[string]*definition.PackageDefinition{
		"A": def("A", "B", "C"),
		"B": def("B", "D"),
		"C": def("C", "D"),
		"D": def("D"),
	}}
	r := New(loader, nil)

	order, err := r.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	seen := map[string]int{}
	for _, n := range order {
		seen[n]++
	}
	for n, count := range seen {
		if count != 1 {
			t.Errorf("%s appeared %d times, want 1", n, count)
		}
	}
	if order[len(order)-1] != "A" {
		t.Errorf("last element = %s, want A", order[len(order)-1])
	}
}

func TestFindDependents(t *testing.T) {
	installed := []InstalledEntry{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "C", Dependencies: []string{"B", "D"}},
		{Name: "B"},
	}
	dependents := FindDependents(installed, "B")
	if len(dependents) != 2 {
		t.Fatalf("dependents = %v, want 2 entries", dependents)
	}
}
