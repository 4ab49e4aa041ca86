package depgraph

// Transitive expands a direct-dependency map into full transitive
// dependency sets: if A depends on B and B depends on C, A's set contains
// both B and C. The closure is memoized so each node's set is computed
// once; nodes on a cycle resolve to the dependencies reachable outside the
// in-progress path, which keeps the recursion terminating.
func Transitive(direct map[string][]string) map[string]map[string]bool {
	full := make(map[string]map[string]bool, len(direct))
	inProgress := make(map[string]bool)

	var expand func(id string) map[string]bool
	expand = func(id string) map[string]bool {
		if done, ok := full[id]; ok {
			return done
		}
		if inProgress[id] {
			return nil
		}
		inProgress[id] = true

		set := make(map[string]bool)
		for _, dep := range direct[id] {
			set[dep] = true
			for indirect := range expand(dep) {
				set[indirect] = true
			}
		}

		delete(inProgress, id)
		full[id] = set
		return set
	}

	for id := range direct {
		expand(id)
	}
	return full
}
