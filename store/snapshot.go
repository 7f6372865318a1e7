package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// CollectionPrefix is prepended to a logical collection name to form the
// physical collection that holds its milestones.
const CollectionPrefix = "m_"

// Document field names shared by every backend.
const (
	FieldID       = "id"
	FieldVersion  = "v"
	FieldType     = "type"
	FieldData     = "data"
	FieldMetadata = "m"

	// FieldInternalID is the storage-internal identity field. Backends that
	// keep one must project it away on reads.
	FieldInternalID = "_id"
)

// Snapshot is a full-state checkpoint of a document at a specific version.
type Snapshot struct {
	ID   string `json:"id"`
	V    int64  `json:"v"`
	Type string `json:"type,omitempty"`
	Data any    `json:"data"`
	// M is always serialised, as null when absent.
	M any `json:"m"`
}

// IsEmpty reports whether there is nothing to persist.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.ID == "" && s.V == 0 && s.Type == "" && s.Data == nil && s.M == nil)
}

// Document is the persisted shape of a snapshot as seen by a Backend.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Document converts the snapshot to the row handed to backends.
func (s *Snapshot) Document() Document {
	return Document{
		FieldID:       s.ID,
		FieldVersion:  s.V,
		FieldType:     s.Type,
		FieldData:     s.Data,
		FieldMetadata: s.M,
	}
}

// DecodeDocument parses a JSON-encoded document. Numbers are kept as
// json.Number so integers beyond 2^53 survive the round trip. A JSON null
// yields an empty document.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// SnapshotFromDocument converts a stored row back into a Snapshot. The
// storage-internal identity field is ignored and a missing metadata field
// is returned as nil.
func SnapshotFromDocument(doc Document) (*Snapshot, error) {
	id, ok := doc[FieldID].(string)
	if !ok {
		return nil, fmt.Errorf("malformed milestone document: id is %T, want string", doc[FieldID])
	}

	v, err := VersionOf(doc[FieldVersion])
	if err != nil {
		return nil, fmt.Errorf("malformed milestone document %s: %w", id, err)
	}

	snap := &Snapshot{
		ID:   id,
		V:    v,
		Data: doc[FieldData],
	}

	switch t := doc[FieldType].(type) {
	case nil:
	case string:
		snap.Type = t
	default:
		return nil, fmt.Errorf("malformed milestone document %s: type is %T, want string", id, t)
	}

	if m, ok := doc[FieldMetadata]; ok && m != nil {
		snap.M = m
	}

	return snap, nil
}

// VersionOf normalises the numeric representations drivers produce for the
// version field.
func VersionOf(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("version %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("version %v is not an integer", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case nil:
		return 0, fmt.Errorf("version is missing")
	default:
		return 0, fmt.Errorf("version is %T, want integer", raw)
	}
}

// CollectionName maps a logical collection to its physical milestone
// collection.
func CollectionName(collection string) string {
	return CollectionPrefix + collection
}
