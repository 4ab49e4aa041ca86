// Package manifest loads declarative resource definitions from YAML files.
// A manifest is a set of typed resource definitions; directories of
// manifests merge into one set. The package also provides a file watcher
// for continuous replanning.
package manifest
