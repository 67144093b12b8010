package asset

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the asset variant.
type Type string

const (
	TypeGene           Type = "Gene"
	TypeCapsule        Type = "Capsule"
	TypeEvolutionEvent Type = "EvolutionEvent"
)

func (t Type) Valid() bool {
	switch t {
	case TypeGene, TypeCapsule, TypeEvolutionEvent:
		return true
	default:
		return false
	}
}

// Wire field names.
const (
	FieldType         = "asset_type"
	FieldName         = "name"
	FieldSummary      = "summary"
	FieldContent      = "content"
	FieldConfidence   = "confidence"
	FieldBlastRadius  = "blast_radius"
	FieldSignalsMatch = "signals_match"
	FieldID           = "asset_id"
)

var knownFields = map[string]bool{
	FieldType: true, FieldName: true, FieldSummary: true, FieldContent: true,
	FieldConfidence: true, FieldBlastRadius: true, FieldSignalsMatch: true, FieldID: true,
}

var (
	ErrInvalidType       = errors.New("asset: invalid asset_type")
	ErrMissingName       = errors.New("asset: name is required")
	ErrConfidenceRange   = errors.New("asset: confidence must be within [0, 1]")
	ErrIdentityMismatch  = errors.New("asset: asset_id does not match content")
	ErrMalformedIdentity = errors.New("asset: malformed asset_id")
)

// Asset is one published unit of knowledge.
//
// ID is derived from every other field and must be recomputed after any
// mutation; use Stamped to obtain a copy carrying a fresh ID.
type Asset struct {
	Type         Type
	Name         string
	Summary      string
	Content      map[string]any
	Confidence   float64
	BlastRadius  string
	SignalsMatch []string
	ID           string

	// Extra holds fields this client does not model. They take part in
	// the identity like any other field.
	Extra map[string]any
}

// Fields returns the wire representation of a. asset_id is present only
// when ID is set. Nil content and signals encode as empty values so the
// identity does not depend on how an empty field was constructed.
func (a Asset) Fields() map[string]any {
	m := make(map[string]any, len(knownFields)+len(a.Extra))
	for k, v := range a.Extra {
		if !knownFields[k] {
			m[k] = v
		}
	}
	content := a.Content
	if content == nil {
		content = map[string]any{}
	}
	signals := a.SignalsMatch
	if signals == nil {
		signals = []string{}
	}
	m[FieldType] = string(a.Type)
	m[FieldName] = a.Name
	m[FieldSummary] = a.Summary
	m[FieldContent] = content
	m[FieldConfidence] = a.Confidence
	m[FieldBlastRadius] = a.BlastRadius
	m[FieldSignalsMatch] = signals
	if a.ID != "" {
		m[FieldID] = a.ID
	}
	return m
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Fields())
}

func (a *Asset) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Asset
	for k, v := range raw {
		var err error
		switch k {
		case FieldType:
			var s string
			err = json.Unmarshal(v, &s)
			out.Type = Type(s)
		case FieldName:
			err = json.Unmarshal(v, &out.Name)
		case FieldSummary:
			err = json.Unmarshal(v, &out.Summary)
		case FieldContent:
			out.Content, err = decodeObject(v)
		case FieldConfidence:
			err = json.Unmarshal(v, &out.Confidence)
		case FieldBlastRadius:
			err = json.Unmarshal(v, &out.BlastRadius)
		case FieldSignalsMatch:
			err = json.Unmarshal(v, &out.SignalsMatch)
		case FieldID:
			err = json.Unmarshal(v, &out.ID)
		default:
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			var x any
			x, err = decodeAny(v)
			out.Extra[k] = x
		}
		if err != nil {
			return fmt.Errorf("asset: field %q: %w", k, err)
		}
	}
	*a = out
	return nil
}

// Validate checks the structural rules every published asset must meet.
func (a Asset) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, a.Type)
	}
	if a.Name == "" {
		return ErrMissingName
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceRange, a.Confidence)
	}
	return nil
}

// Clone returns a deep copy of a.
func (a Asset) Clone() Asset {
	out := a
	if a.Content != nil {
		out.Content = cloneValue(a.Content).(map[string]any)
	}
	if a.SignalsMatch != nil {
		out.SignalsMatch = append([]string(nil), a.SignalsMatch...)
	}
	if a.Extra != nil {
		out.Extra = cloneValue(a.Extra).(map[string]any)
	}
	return out
}

// Stamped returns a deep copy of a with ID set to its computed identity.
// The receiver is left untouched.
func (a Asset) Stamped() (Asset, error) {
	out := a.Clone()
	id, err := ComputeID(out)
	if err != nil {
		return Asset{}, err
	}
	out.ID = id
	return out, nil
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
