package binderfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MedicalDocument is one record of the binder. Children hold addenda and
// attachment references and are never nil after parsing.
type MedicalDocument struct {
	Value    string            `json:"value"`
	Metadata DocumentMetadata  `json:"metadata"`
	Children []MedicalDocument `json:"children"`
	Renderer json.RawMessage   `json:"renderer,omitempty"`
	Editor   json.RawMessage   `json:"editor,omitempty"`
}

// DocumentMetadata holds the typed metadata fields. Keys this package does not
// know are kept in Extra so documents round-trip unchanged.
type DocumentMetadata struct {
	Type         string
	Created      string
	Updated      string
	Provider     string
	Tags         []string
	Format       string
	DisplayOrder *int
	Extra        map[string]json.RawMessage
}

// known metadata keys, in the order they are written
var metadataKeys = []string{"type", "created", "updated", "provider", "tags", "format", "displayOrder"}

// MarshalJSON writes the typed fields followed by the extra keys
func (m DocumentMetadata) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(metadataKeys)+len(m.Extra))
	for k, v := range m.Extra {
		fields[k] = v
	}
	fields["type"] = m.Type
	fields["created"] = m.Created
	if m.Updated != "" {
		fields["updated"] = m.Updated
	}
	if m.Provider != "" {
		fields["provider"] = m.Provider
	}
	if m.Tags != nil {
		fields["tags"] = m.Tags
	}
	if m.Format != "" {
		fields["format"] = m.Format
	}
	if m.DisplayOrder != nil {
		fields["displayOrder"] = *m.DisplayOrder
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the typed fields and keeps everything else in Extra
func (m *DocumentMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out DocumentMetadata
	targets := map[string]any{
		"type":         &out.Type,
		"created":      &out.Created,
		"updated":      &out.Updated,
		"provider":     &out.Provider,
		"tags":         &out.Tags,
		"format":       &out.Format,
		"displayOrder": &out.DisplayOrder,
	}
	for _, key := range metadataKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)
		if bytes.Equal(value, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(value, targets[key]); err != nil {
			return fmt.Errorf("metadata.%s: %w", key, err)
		}
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	*m = out
	return nil
}

// Validate checks the document invariants and normalizes absent children to an
// empty list, recursively
func (d *MedicalDocument) Validate() error {
	if d.Metadata.Type == "" {
		return &ValidationError{Field: "metadata.type", Message: "document type is required", Err: ErrMalformedDocument}
	}
	if d.Metadata.Created == "" {
		return &ValidationError{Field: "metadata.created", Message: "document creation time is required", Err: ErrMalformedDocument}
	}
	if d.Children == nil {
		d.Children = []MedicalDocument{}
	}
	for i := range d.Children {
		if err := d.Children[i].Validate(); err != nil {
			return fmt.Errorf("children[%d]: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy so cached documents cannot be mutated by callers
func (d *MedicalDocument) Clone() *MedicalDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata.Tags = cloneSlice(d.Metadata.Tags)
	if d.Metadata.DisplayOrder != nil {
		order := *d.Metadata.DisplayOrder
		c.Metadata.DisplayOrder = &order
	}
	if d.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]json.RawMessage, len(d.Metadata.Extra))
		for k, v := range d.Metadata.Extra {
			c.Metadata.Extra[k] = cloneSlice(v)
		}
	}
	c.Renderer = cloneSlice(d.Renderer)
	c.Editor = cloneSlice(d.Editor)
	if d.Children != nil {
		c.Children = make([]MedicalDocument, len(d.Children))
		for i := range d.Children {
			c.Children[i] = *d.Children[i].Clone()
		}
	}
	return &c
}

// ParseDocument decodes and validates decrypted document JSON
func ParseDocument(data []byte) (*MedicalDocument, error) {
	var doc MedicalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FrontMatter is the YAML block that may open a document's markdown value
type FrontMatter map[string]any

// SplitFrontMatter separates a leading "---" YAML block from the markdown body.
// Values without front matter are returned unchanged with a nil map.
func SplitFrontMatter(value string) (FrontMatter, string, error) {
	normalized := strings.ReplaceAll(value, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return nil, value, nil
	}
	rest := normalized[len("---\n"):]

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, value, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	fm := FrontMatter{}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, body, fmt.Errorf("invalid front matter: %w", err)
	}
	return fm, body, nil
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
