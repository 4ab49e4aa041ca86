package diff

import (
	"fmt"
	"sort"
	"strings"
)

// ListDiff maps each local list index considered "the same entity,
// possibly updated" to its matched remote index, and lists local-only
// indices as additions. Remote indices absent from Matched's value set are
// implicit deletions.
type ListDiff struct {
	// Matched maps local index -> remote index, in local order.
	Matched map[int]int

	// Added lists local indices with no remote counterpart, ascending.
	Added []int
}

// Removed derives the implicitly deleted remote indices: those not claimed
// by any local element.
func (d ListDiff) Removed(remoteLen int) []int {
	claimed := make(map[int]bool, len(d.Matched))
	for _, r := range d.Matched {
		claimed[r] = true
	}
	var removed []int
	for i := 0; i < remoteLen; i++ {
		if !claimed[i] {
			removed = append(removed, i)
		}
	}
	return removed
}

// DiffList matches the local list against the remote list under the given
// identity strategy. Local ordering is preserved in the output so
// downstream rendering of "what changed" follows the authored order.
// Duplicate keys match pairwise, first occurrence to first occurrence.
func DiffList(local, remote []any, id Identity) ListDiff {
	if id == nil {
		id = ValueIdentity{}
	}

	// Remote key -> queue of indices still available for matching.
	available := make(map[string][]int, len(remote))
	for i, v := range remote {
		if key, ok := id.Key(v); ok {
			available[key] = append(available[key], i)
		}
	}

	out := ListDiff{Matched: make(map[int]int)}
	for i, v := range local {
		key, ok := id.Key(v)
		if ok {
			if queue := available[key]; len(queue) > 0 {
				out.Matched[i] = queue[0]
				available[key] = queue[1:]
				continue
			}
		}
		out.Added = append(out.Added, i)
	}
	return out
}

// Action classifies a change.
type Action string

const (
	// ActionAdd indicates a value present locally but not remotely.
	ActionAdd Action = "add"

	// ActionRemove indicates a value present remotely but not locally.
	ActionRemove Action = "remove"

	// ActionModify indicates a value present on both sides with different
	// content.
	ActionModify Action = "modify"
)

// Change is one difference between the local and remote representation.
type Change struct {
	// Path locates the changed value, e.g. ".columns[2].type".
	Path string

	// Before is the remote value, nil for additions.
	Before any

	// After is the local value, nil for removals.
	After any

	// Action classifies the change.
	Action Action
}

// Options configures a structural diff.
type Options struct {
	// Identities selects the identity strategy per list path. Paths are
	// schema paths with indices stripped (".columns", not ".columns[2]").
	// Lists without an entry use ValueIdentity.
	Identities map[string]Identity
}

// Diff computes the change set turning remote into local. Both sides are
// nested JSON-like maps. Scalar fields compare by normalized equality;
// lists are matched per the path's identity strategy and matched elements
// are recursed into. A type mismatch at any path degenerates to
// whole-value replacement.
func Diff(local, remote map[string]any, opts Options) []Change {
	var changes []Change
	diffMap(".", local, remote, opts, &changes)
	return changes
}

func diffMap(path string, local, remote map[string]any, opts Options, changes *[]Change) {
	keys := make([]string, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for k := range local {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range remote {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		childPath := joinPath(path, k)
		lv, inLocal := local[k]
		rv, inRemote := remote[k]
		switch {
		case !inRemote:
			*changes = append(*changes, Change{Path: childPath, After: lv, Action: ActionAdd})
		case !inLocal:
			*changes = append(*changes, Change{Path: childPath, Before: rv, Action: ActionRemove})
		default:
			diffValue(childPath, lv, rv, opts, changes)
		}
	}
}

func diffValue(path string, local, remote any, opts Options, changes *[]Change) {
	switch lv := local.(type) {
	case map[string]any:
		if rv, ok := remote.(map[string]any); ok {
			diffMap(path, lv, rv, opts, changes)
			return
		}
	case []any:
		if rv, ok := remote.([]any); ok {
			diffList(path, lv, rv, opts, changes)
			return
		}
	default:
		if Equal(local, remote) {
			return
		}
		*changes = append(*changes, Change{Path: path, Before: remote, After: local, Action: ActionModify})
		return
	}

	// Type mismatch, or a container vs scalar: whole-value replacement.
	if !Equal(local, remote) {
		*changes = append(*changes, Change{Path: path, Before: remote, After: local, Action: ActionModify})
	}
}

func diffList(path string, local, remote []any, opts Options, changes *[]Change) {
	identity := opts.Identities[schemaPath(path)]
	d := DiffList(local, remote, identity)

	for _, i := range d.Added {
		*changes = append(*changes, Change{
			Path:   fmt.Sprintf("%s[%d]", path, i),
			After:  local[i],
			Action: ActionAdd,
		})
	}

	// Matched elements recurse in local order so nested field updates
	// surface individually.
	locals := make([]int, 0, len(d.Matched))
	for i := range d.Matched {
		locals = append(locals, i)
	}
	sort.Ints(locals)
	for _, i := range locals {
		diffValue(fmt.Sprintf("%s[%d]", path, i), local[i], remote[d.Matched[i]], opts, changes)
	}

	for _, i := range d.Removed(len(remote)) {
		*changes = append(*changes, Change{
			Path:   fmt.Sprintf("%s[%d]", path, i),
			Before: remote[i],
			Action: ActionRemove,
		})
	}
}

func joinPath(base, key string) string {
	if base == "." {
		return "." + key
	}
	return base + "." + key
}

// schemaPath strips index segments from a concrete path, producing the key
// used to look up per-path identity strategies.
func schemaPath(path string) string {
	var sb strings.Builder
	skip := false
	for _, r := range path {
		switch {
		case r == '[':
			skip = true
		case r == ']':
			skip = false
		case !skip:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
