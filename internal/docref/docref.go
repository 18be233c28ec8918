// Package docref parses the "Collection/id" references clients send for linked
// documents.
package docref

import (
	"strings"

	"github.com/dipr-ads/be-release-orders/internal/errors"
)

// Collection names accepted in client references.
const (
	Users                  = "Users"
	Advertisement          = "Advertisement"
	NewspaperJobAllocation = "NewspaperJobAllocation"
	InvoiceRequest         = "Invoice_Request"
	NoteSheet              = "approved_add"
)

// Ref is a typed pointer to a document in a collection.
type Ref struct {
	Collection string
	ID         string
}

// String renders the reference in "Collection/id" form.
func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Parse resolves s as a reference into collection. Both "Collection/id" and a
// bare id are accepted. field names the request field for error reporting.
func Parse(collection, field, s string) (Ref, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "/")
	if raw == "" {
		return Ref{}, errors.InvalidInput(field, "reference is required")
	}

	parts := strings.Split(raw, "/")
	// "Collection/id/" carries one trailing separator.
	if len(parts) > 2 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	switch len(parts) {
	case 1:
		return Ref{Collection: collection, ID: parts[0]}, nil
	case 2:
		if parts[0] != collection {
			return Ref{}, errors.InvalidInput(field, "expected a "+collection+" reference, got "+parts[0])
		}
		if strings.TrimSpace(parts[1]) == "" {
			return Ref{}, errors.InvalidInput(field, "reference id is empty")
		}
		return Ref{Collection: collection, ID: strings.TrimSpace(parts[1])}, nil
	default:
		return Ref{}, errors.InvalidInput(field, "nested document paths are not supported")
	}
}

// ParseOptional is Parse for fields that may be omitted. An empty s yields nil.
func ParseOptional(collection, field, s string) (*Ref, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	ref, err := Parse(collection, field, s)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ParseList parses every entry of ss and rejects duplicates.
func ParseList(collection, field string, ss []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(ss))
	seen := make(map[string]bool, len(ss))
	for _, s := range ss {
		ref, err := Parse(collection, field, s)
		if err != nil {
			return nil, err
		}
		if seen[ref.ID] {
			return nil, errors.InvalidInput(field, "duplicate reference "+ref.String())
		}
		seen[ref.ID] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

// IDs returns the bare ids of refs in order.
func IDs(refs []Ref) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

// ID returns the bare id of an optional reference, or nil.
func ID(ref *Ref) *string {
	if ref == nil {
		return nil
	}
	id := ref.ID
	return &id
}
