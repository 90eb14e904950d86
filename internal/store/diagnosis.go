package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/rootcause/internal/engine"
	"github.com/roach88/rootcause/internal/ir"
)

// Diagnosis is the stored form of one finished diagnosis.
type Diagnosis struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	InputDigest   string            `json:"input_digest"`
	Input         json.RawMessage   `json:"input"`
	Variables     map[string]string `json:"variables"`
	EngineVersion string            `json:"engine_version"`
	SchemaVersion string            `json:"schema_version"`
	Tags          []ir.Tag          `json:"tags"`
	Outputs       []ir.RuleOutput   `json:"outputs"`
	EndTags       []ir.TagID        `json:"end_tags"`
}

// Summary is one line of a diagnosis listing.
type Summary struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	InputDigest string `json:"input_digest"`
	Tags        int    `json:"tags"`
	EndTags     int    `json:"end_tags"`
}

// NewDiagnosis converts an engine result into its stored form.
//
// Variables are stored in their fmt.Sprint form. The input digest covers
// the input JSON and the variables, so re-running the same trace with the
// same settings yields the same digest.
func NewDiagnosis[I any](id string, vars map[string]any, res *engine.DefaultResult[I]) (*Diagnosis, error) {
	if res == nil {
		return nil, fmt.Errorf("new diagnosis: nil result")
	}
	input, err := marshalJSON(res.Input)
	if err != nil {
		return nil, fmt.Errorf("new diagnosis: marshal input: %w", err)
	}

	strVars := make(map[string]string, len(vars))
	digestVars := make(map[string]any, len(vars))
	for k, v := range vars {
		strVars[k] = fmt.Sprint(v)
		digestVars[k] = strVars[k]
	}
	digest, err := ir.InputDigest(map[string]any{
		"input":     string(input),
		"variables": digestVars,
	})
	if err != nil {
		return nil, fmt.Errorf("new diagnosis: %w", err)
	}

	var ends []ir.TagID
	for _, tagType := range slices.Sorted(maps.Keys(res.EndTags)) {
		for _, t := range res.EndTags[tagType] {
			ends = append(ends, t.ID)
		}
	}
	slices.Sort(ends)

	return &Diagnosis{
		ID:            id,
		SessionID:     res.SessionID,
		InputDigest:   digest,
		Input:         input,
		Variables:     strVars,
		EngineVersion: ir.EngineVersion,
		SchemaVersion: ir.SchemaVersion,
		Tags:          res.Tags(),
		Outputs:       res.Outputs,
		EndTags:       ends,
	}, nil
}

// Arena rebuilds the tag graph. Tags are stored in allocation order with
// parents before children, so ids are preserved.
func (d *Diagnosis) Arena() (*ir.Arena, error) {
	arena := ir.NewArena()
	for i, t := range d.Tags {
		var (
			got ir.Tag
			err error
		)
		if i == 0 {
			got, err = arena.Root(t.Value)
		} else {
			got, err = arena.New(t.Type, t.Value, t.Parents...)
		}
		if err != nil {
			return nil, fmt.Errorf("rebuild tag %d: %w", t.ID, err)
		}
		if got.ID != t.ID {
			return nil, fmt.Errorf("rebuild tag %d: allocated as %d", t.ID, got.ID)
		}
	}
	return arena, nil
}

// Lineage returns the tag followed by its ancestors, nearest first.
func (d *Diagnosis) Lineage(id ir.TagID) ([]ir.Tag, error) {
	arena, err := d.Arena()
	if err != nil {
		return nil, err
	}
	lineage := arena.Lineage(id)
	if lineage == nil {
		return nil, fmt.Errorf("tag %d: %w", id, ir.ErrUnknownTag)
	}
	return lineage, nil
}

// marshalJSON encodes v without HTML escaping.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(strings.TrimSpace(buf.String())), nil
}

func unmarshalIDs(data string) ([]ir.TagID, error) {
	ids := []ir.TagID{}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
