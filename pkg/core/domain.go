// Document is the central entity of the domain.
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Document is a named, revisioned bundle of field-value data.
// Body is always an object; ID and Rev are managed by the store.
type Document struct {
	ID   string
	Rev  Revision
	Body Value
}

// MarshalJSON renders the document with its system fields inlined as
// "_id" and "_rev".
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, d.Body.Len()+2)
	for k, v := range d.Body.Fields() {
		out[k] = v
	}
	out["_id"] = String(d.ID)
	out["_rev"] = String(d.Rev.String())
	return json.Marshal(out)
}

// ValidateID rejects empty ids, ids that are not valid UTF-8 and ids in the
// reserved "_" namespace.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: document ID cannot be empty", ErrInvalidDocument)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: document ID %q is not valid UTF-8", ErrInvalidDocument, id)
	}
	if strings.HasPrefix(id, "_") {
		return fmt.Errorf("%w: document ID %q uses the reserved '_' prefix", ErrInvalidDocument, id)
	}
	return nil
}

// ValidateBody normalizes a document body: null becomes an empty object,
// non-objects are rejected, and so are top-level members starting with "_"
// and any key or string that is not valid UTF-8.
func ValidateBody(body Value) (Value, error) {
	switch body.Kind() {
	case KindNull:
		return Object(nil), nil
	case KindObject:
	default:
		return Value{}, fmt.Errorf("%w: body must be an object, got %s", ErrInvalidDocument, body.Kind())
	}
	for k := range body.Fields() {
		if strings.HasPrefix(k, "_") {
			return Value{}, fmt.Errorf("%w: reserved member %q", ErrInvalidDocument, k)
		}
	}
	if err := checkUTF8(body); err != nil {
		return Value{}, err
	}
	return body, nil
}

func checkUTF8(v Value) error {
	switch v.Kind() {
	case KindString:
		if s, _ := v.AsString(); !utf8.ValidString(s) {
			return fmt.Errorf("%w: string %q is not valid UTF-8", ErrInvalidDocument, s)
		}
	case KindArray:
		for _, item := range v.Items() {
			if err := checkUTF8(item); err != nil {
				return err
			}
		}
	case KindObject:
		for k, field := range v.Fields() {
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w: member name %q is not valid UTF-8", ErrInvalidDocument, k)
			}
			if err := checkUTF8(field); err != nil {
				return err
			}
		}
	}
	return nil
}

// EventType represents the type of change in the store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a committed change.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Rev       Revision  `json:"rev"`
	Seq       uint64    `json:"seq"`
	Timestamp int64     `json:"ts"` // Unix nanoseconds
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s@%s (seq %d)", e.Type, e.ID, e.Rev, e.Seq)
}

// ListOptions filters List results.
type ListOptions struct {
	// Pattern is a doublestar glob matched against ids. Empty matches all.
	Pattern string
	// Limit caps the number of results. Zero means no limit.
	Limit int
	// IncludeDocs loads bodies; otherwise only ID and Rev are set.
	IncludeDocs bool
}

// Info summarizes a store.
type Info struct {
	Path         string `json:"path"`
	DocCount     int    `json:"doc_count"`
	DeletedCount int    `json:"deleted_count"`
	UpdateSeq    uint64 `json:"update_seq"`
	LogSize      int64  `json:"log_size"`
	ReadOnly     bool   `json:"read_only"`
}
