package syncer

import (
	"fmt"
	"strings"
)

// Kind identifies the type of entity being synced. Each kind carries
// its own validated field set; unknown fields are rejected rather
// than silently dropped.
type Kind string

const (
	KindBusinessRule    Kind = "business_rule"
	KindTemporaryRule   Kind = "temporary_rule"
	KindSchedulingRule  Kind = "scheduling_rule"
	KindSupportDocument Kind = "support_document"
)

// Collection names. The three rule kinds share one collection and are
// distinguished by the kind payload filter; documents get their own.
const (
	CollectionRules     = "rules"
	CollectionDocuments = "documents"
)

// Field names accepted in a sync request's fields map.
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldContent      = "content"
	FieldDocumentType = "document_type"
)

// kindSpec describes one kind: which text fields it embeds (in
// chunking order), and which metadata fields it accepts.
type kindSpec struct {
	collection string
	textFields []string
	metaFields []string
}

var kindSpecs = map[Kind]kindSpec{
	KindBusinessRule: {
		collection: CollectionRules,
		textFields: []string{FieldName, FieldDescription},
	},
	KindTemporaryRule: {
		collection: CollectionRules,
		textFields: []string{FieldName, FieldDescription},
	},
	KindSchedulingRule: {
		collection: CollectionRules,
		textFields: []string{FieldName, FieldDescription},
	},
	KindSupportDocument: {
		collection: CollectionDocuments,
		textFields: []string{FieldName, FieldContent},
		metaFields: []string{FieldDocumentType},
	},
}

// ParseKind converts a wire string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindSpecs[k]; !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
	}
	return k, nil
}

// Valid reports whether the kind is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Collection returns the logical collection this kind is stored in.
func (k Kind) Collection() string {
	return kindSpecs[k].collection
}

// TextFields returns the kind's embeddable field names in chunking
// order. The order is fixed so chunk indexes are stable across
// re-syncs of the same snapshot.
func (k Kind) TextFields() []string {
	return kindSpecs[k].textFields
}

// ValidateFields checks a fields map against the kind's field set.
// Every key must be a known text or metadata field of the kind, and
// at least one text field must be non-empty.
func (k Kind) ValidateFields(fields map[string]string) error {
	spec, ok := kindSpecs[k]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, k)
	}
	allowed := make(map[string]bool, len(spec.textFields)+len(spec.metaFields))
	for _, f := range spec.textFields {
		allowed[f] = true
	}
	for _, f := range spec.metaFields {
		allowed[f] = true
	}
	for name := range fields {
		if !allowed[name] {
			return fmt.Errorf("%w: field %q is not valid for kind %q", ErrValidation, name, k)
		}
	}
	for _, f := range spec.textFields {
		if strings.TrimSpace(fields[f]) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: kind %q requires at least one non-empty text field (%s)",
		ErrValidation, k, strings.Join(spec.textFields, ", "))
}
