package imf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/matzehuels/imfgraph/pkg/errors"
)

// Component is one entry of the relations mapping.
//
// Only the first PartOf entry is used as the tree parent; extra parents are
// ignored. ConnectedTo and HasTerminal are carried through for future edge
// kinds and are not materialized into the layout.
type Component struct {
	Name        string     `json:"-"`
	TagID       string     `json:"tagID"`
	PartOf      StringList `json:"partOf"`
	ConnectedTo StringList `json:"connectedTo"`
	Fulfills    StringList `json:"fulfills"`
	HasTerminal StringList `json:"hasTerminal"`
}

// PrimaryParent returns the first declared parent name, or "" for a root.
func (c Component) PrimaryParent() string {
	if len(c.PartOf) == 0 {
		return ""
	}
	return c.PartOf[0]
}

// StringList is a JSON string array that also accepts a bare string or
// null. Generators regularly emit "partOf": "Cooling system" for a
// single parent.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StringList, 0, len(raw))
	for _, r := range raw {
		s, err := scalarString(r)
		if err != nil {
			return err
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

// MarshalJSON always emits an array, never null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// record mirrors Component for decoding; tagID may arrive as a number.
type record struct {
	TagID       json.RawMessage `json:"tagID"`
	PartOf      StringList      `json:"partOf"`
	ConnectedTo StringList      `json:"connectedTo"`
	Fulfills    StringList      `json:"fulfills"`
	HasTerminal StringList      `json:"hasTerminal"`
}

// scalarString renders a JSON string or number as a string.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

// ParseRelations decodes a relations mapping into components, preserving the
// key order of the source text. The input must be strictly valid JSON; run
// generator output through recovery.Bytes first.
//
// The result is validated before it is returned: every component needs a
// non-empty tagID, and tagIDs must be unique within the document. Either
// violation fails the whole document.
func ParseRelations(data []byte) ([]Component, error) {
	om := orderedmap.New[string, record]()
	if err := json.Unmarshal(data, om); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode relations")
	}

	comps := make([]Component, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		tagID, err := scalarString(pair.Value.TagID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "component %q: tagID", pair.Key)
		}
		comps = append(comps, Component{
			Name:        pair.Key,
			TagID:       strings.TrimSpace(tagID),
			PartOf:      pair.Value.PartOf,
			ConnectedTo: pair.Value.ConnectedTo,
			Fulfills:    pair.Value.Fulfills,
			HasTerminal: pair.Value.HasTerminal,
		})
	}

	if err := Validate(comps); err != nil {
		return nil, err
	}
	return comps, nil
}

// Validate checks the identity invariants the converter relies on: unique
// names, and non-empty unique tagIDs.
func Validate(comps []Component) error {
	seen := make(map[string]string, len(comps))
	names := make(map[string]struct{}, len(comps))
	for _, c := range comps {
		if _, ok := names[c.Name]; ok {
			return errors.New(errors.ErrCodeDuplicateIdentifier, "duplicate component name %q", c.Name)
		}
		names[c.Name] = struct{}{}
		if c.TagID == "" {
			return errors.New(errors.ErrCodeMissingIdentifier, "component %q has no tagID", c.Name)
		}
		if c.TagID == Void {
			return errors.New(errors.ErrCodeInvalidInput, "component %q uses the reserved tagID %q", c.Name, Void)
		}
		if prev, ok := seen[c.TagID]; ok {
			return errors.New(errors.ErrCodeDuplicateIdentifier,
				"components %q and %q share tagID %q", prev, c.Name, c.TagID)
		}
		seen[c.TagID] = c.Name
	}
	return nil
}

// MarshalRelations encodes components back into a relations mapping in
// slice order.
func MarshalRelations(comps []Component) ([]byte, error) {
	om := orderedmap.New[string, Component]()
	for _, c := range comps {
		om.Set(c.Name, c)
	}
	return json.MarshalIndent(om, "", "  ")
}
