package engine

import (
	"github.com/marbledata/marble/pkg/diff"
)

// Built-in resource types for the data platform. Each type declares its API
// endpoint, the implicit back-references its definitions carry, and the
// identity strategies for its nested collections. Every type additionally
// honors an explicit "depends_on" list of "type/id" keys in its definition.

// refKeys collects back-references from a definition field that holds either
// a single name or a list of names.
func refKeys(spec map[string]any, field, refType string) []ResourceKey {
	var keys []ResourceKey
	switch v := spec[field].(type) {
	case string:
		if v != "" {
			keys = append(keys, ResourceKey{Type: refType, ID: v})
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				keys = append(keys, ResourceKey{Type: refType, ID: s})
			}
		}
	}
	return keys
}

// explicitKeys collects the "depends_on" list shared by all types.
func explicitKeys(spec map[string]any) []ResourceKey {
	var keys []ResourceKey
	items, _ := spec["depends_on"].([]any)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if key, err := ParseResourceKey(s); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// DatabaseType is a logical database. Databases have no implicit
// dependencies.
type DatabaseType struct{}

func (DatabaseType) Name() string     { return "database" }
func (DatabaseType) Endpoint() string { return "/api/v1/databases" }

func (DatabaseType) Dependencies(r Resource) []ResourceKey {
	return explicitKeys(r.Spec)
}

func (DatabaseType) Identities() map[string]diff.Identity {
	return nil
}

// LocationType is an external storage location.
type LocationType struct{}

func (LocationType) Name() string     { return "location" }
func (LocationType) Endpoint() string { return "/api/v1/locations" }

func (LocationType) Dependencies(r Resource) []ResourceKey {
	return explicitKeys(r.Spec)
}

func (LocationType) Identities() map[string]diff.Identity {
	return nil
}

// TableType is a table inside a database, optionally backed by a storage
// location. Columns are matched by name so a reorder is not a change.
type TableType struct{}

func (TableType) Name() string     { return "table" }
func (TableType) Endpoint() string { return "/api/v1/tables" }

func (TableType) Dependencies(r Resource) []ResourceKey {
	keys := refKeys(r.Spec, "database", "database")
	keys = append(keys, refKeys(r.Spec, "location", "location")...)
	return append(keys, explicitKeys(r.Spec)...)
}

func (TableType) Identities() map[string]diff.Identity {
	return map[string]diff.Identity{
		".columns": diff.FieldKey("name"),
	}
}

// ViewType is a saved query over tables in a database.
type ViewType struct{}

func (ViewType) Name() string     { return "view" }
func (ViewType) Endpoint() string { return "/api/v1/views" }

func (ViewType) Dependencies(r Resource) []ResourceKey {
	keys := refKeys(r.Spec, "database", "database")
	keys = append(keys, refKeys(r.Spec, "tables", "table")...)
	return append(keys, explicitKeys(r.Spec)...)
}

func (ViewType) Identities() map[string]diff.Identity {
	return nil
}

// PipelineType is a data pipeline reading input tables and writing output
// tables. Transform steps are matched by name.
type PipelineType struct{}

func (PipelineType) Name() string     { return "pipeline" }
func (PipelineType) Endpoint() string { return "/api/v1/pipelines" }

func (PipelineType) Dependencies(r Resource) []ResourceKey {
	keys := refKeys(r.Spec, "inputs", "table")
	keys = append(keys, refKeys(r.Spec, "outputs", "table")...)
	return append(keys, explicitKeys(r.Spec)...)
}

func (PipelineType) Identities() map[string]diff.Identity {
	return map[string]diff.Identity{
		".transforms": diff.FieldKey("name"),
	}
}

// ScheduleType triggers a pipeline on a cron expression.
type ScheduleType struct{}

func (ScheduleType) Name() string     { return "schedule" }
func (ScheduleType) Endpoint() string { return "/api/v1/schedules" }

func (ScheduleType) Dependencies(r Resource) []ResourceKey {
	keys := refKeys(r.Spec, "pipeline", "pipeline")
	return append(keys, explicitKeys(r.Spec)...)
}

func (ScheduleType) Identities() map[string]diff.Identity {
	return nil
}

// DefaultRegistry returns a registry with all built-in resource types.
func DefaultRegistry() *Registry {
	return NewRegistry(
		DatabaseType{},
		LocationType{},
		TableType{},
		ViewType{},
		PipelineType{},
		ScheduleType{},
	)
}
