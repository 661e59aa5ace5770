package audit

import "time"

// ObjectType enumerates the closed set of versioned entity kinds that carry a
// change log. Adding a kind means adding it here and implementing Versioned.
type ObjectType string

const (
	ObjectTypeQuery     ObjectType = "query"
	ObjectTypeDashboard ObjectType = "dashboard"
)

// Versioned is implemented by entities whose mutations are tracked. The
// tracked-field map deliberately excludes id, created_at, updated_at and
// version; those never appear in a change record.
type Versioned interface {
	AuditObjectType() ObjectType
	AuditObjectID() string
	AuditVersion() int
	TrackedFields() map[string]any
}

type FieldDiff struct {
	Previous any `json:"previous"`
	Current  any `json:"current"`
}

// ChangeRecord is one append-only entry of the field-level change log.
type ChangeRecord struct {
	ID            string               `json:"id"`
	ObjectType    ObjectType           `json:"object_type"`
	ObjectID      string               `json:"object_id"`
	ObjectVersion int                  `json:"object_version"`
	UserID        string               `json:"user_id"`
	Change        map[string]FieldDiff `json:"change"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Snapshot captures the tracked fields of an entity before a mutation begins.
type Snapshot struct {
	objectType ObjectType
	objectID   string
	fields     map[string]any
}

// Capture takes the pre-mutation snapshot of every tracked field.
func Capture(v Versioned) Snapshot {
	fields := make(map[string]any, len(v.TrackedFields()))
	for k, val := range v.TrackedFields() {
		fields[k] = val
	}
	return Snapshot{objectType: v.AuditObjectType(), objectID: v.AuditObjectID(), fields: fields}
}

// CreationSnapshot is the snapshot used for change #1: every tracked field of
// the new entity diffed against a nil previous value.
func CreationSnapshot(v Versioned) Snapshot {
	fields := make(map[string]any, len(v.TrackedFields()))
	for k := range v.TrackedFields() {
		fields[k] = nil
	}
	return Snapshot{objectType: v.AuditObjectType(), objectID: v.AuditObjectID(), fields: fields}
}

// Diff produces the full field snapshot-diff against the post-mutation state.
// Every tracked field is recorded, changed or not; consumers rely on the
// record being complete rather than a minimal delta.
func (s Snapshot) Diff(v Versioned) map[string]FieldDiff {
	current := v.TrackedFields()
	change := make(map[string]FieldDiff, len(current))
	for k, cur := range current {
		change[k] = FieldDiff{Previous: s.fields[k], Current: cur}
	}
	return change
}
