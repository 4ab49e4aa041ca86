package depgraph

import (
	"testing"
)

func TestTransitive_Chain(t *testing.T) {
	direct := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	}

	closure := Transitive(direct)

	if !closure["a"]["b"] || !closure["a"]["c"] {
		t.Errorf("Expected a to depend on b and c transitively, got %v", closure["a"])
	}
	if !closure["b"]["c"] {
		t.Errorf("Expected b to depend on c, got %v", closure["b"])
	}
	if len(closure["c"]) != 0 {
		t.Errorf("Expected c to have no dependencies, got %v", closure["c"])
	}
}

func TestTransitive_Diamond(t *testing.T) {
	direct := map[string][]string{
		"top":    {"left", "right"},
		"left":   {"bottom"},
		"right":  {"bottom"},
		"bottom": nil,
	}

	closure := Transitive(direct)

	want := []string{"left", "right", "bottom"}
	for _, dep := range want {
		if !closure["top"][dep] {
			t.Errorf("Expected top to depend on %s, got %v", dep, closure["top"])
		}
	}
	if len(closure["top"]) != 3 {
		t.Errorf("Expected 3 transitive deps for top, got %d", len(closure["top"]))
	}
}

func TestTransitive_CycleTerminates(t *testing.T) {
	direct := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}

	closure := Transitive(direct)

	if !closure["a"]["b"] {
		t.Errorf("Expected a to depend on b, got %v", closure["a"])
	}
	if !closure["b"]["a"] {
		t.Errorf("Expected b to depend on a, got %v", closure["b"])
	}
}
