package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"
)

// Payload field names as persisted in Qdrant.
const (
	FieldAccountID    = "account_id"
	FieldKind         = "kind"
	FieldEntityID     = "entity_id"
	FieldChunkIndex   = "chunk_index"
	FieldSourceField  = "source_field"
	FieldTextSnippet  = "text_snippet"
	FieldIsTemporary  = "is_temporary"
	FieldDocumentType = "document_type"
)

// Payload is the typed point payload. AccountID, Kind, EntityID and
// ChunkIndex identify the point; the rest is kind-specific metadata.
type Payload struct {
	AccountID  string
	Kind       string
	EntityID   int64
	ChunkIndex int

	// SourceField names the entity text field this chunk came from
	// (name, description, content).
	SourceField string

	// TextSnippet is the verbatim chunk text, included only when
	// snippet display is needed downstream.
	TextSnippet string

	// IsTemporary is set for temporary rules to support filtered search.
	IsTemporary *bool

	// DocumentType is set for support documents.
	DocumentType string
}

// toQdrant converts the payload to the Qdrant wire representation.
func (p Payload) toQdrant() map[string]*qdrant.Value {
	out := map[string]*qdrant.Value{
		FieldAccountID:  {Kind: &qdrant.Value_StringValue{StringValue: p.AccountID}},
		FieldKind:       {Kind: &qdrant.Value_StringValue{StringValue: p.Kind}},
		FieldEntityID:   {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.EntityID}},
		FieldChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.ChunkIndex)}},
	}
	if p.SourceField != "" {
		out[FieldSourceField] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.SourceField}}
	}
	if p.TextSnippet != "" {
		out[FieldTextSnippet] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.TextSnippet}}
	}
	if p.IsTemporary != nil {
		out[FieldIsTemporary] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: *p.IsTemporary}}
	}
	if p.DocumentType != "" {
		out[FieldDocumentType] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.DocumentType}}
	}
	return out
}

// payloadFromQdrant converts a Qdrant payload map back into a Payload.
// Unknown fields are ignored.
func payloadFromQdrant(raw map[string]*qdrant.Value) Payload {
	var p Payload
	for key, val := range raw {
		switch key {
		case FieldAccountID:
			p.AccountID = val.GetStringValue()
		case FieldKind:
			p.Kind = val.GetStringValue()
		case FieldEntityID:
			p.EntityID = val.GetIntegerValue()
		case FieldChunkIndex:
			p.ChunkIndex = int(val.GetIntegerValue())
		case FieldSourceField:
			p.SourceField = val.GetStringValue()
		case FieldTextSnippet:
			p.TextSnippet = val.GetStringValue()
		case FieldIsTemporary:
			b := val.GetBoolValue()
			p.IsTemporary = &b
		case FieldDocumentType:
			p.DocumentType = val.GetStringValue()
		}
	}
	return p
}
