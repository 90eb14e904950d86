package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
)

// ReadDiagnosis returns a stored diagnosis with all its records.
// Returns ErrNotFound if the id is unknown.
func (s *Store) ReadDiagnosis(ctx context.Context, id string) (*Diagnosis, error) {
	var (
		d     = &Diagnosis{ID: id}
		input string
		vars  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, input_digest, input, variables, engine_version, schema_version
		FROM diagnoses
		WHERE id = ?
	`, id).Scan(&d.SessionID, &d.InputDigest, &input, &vars, &d.EngineVersion, &d.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read diagnosis: %w", err)
	}
	d.Input = json.RawMessage(input)
	if err := json.Unmarshal([]byte(vars), &d.Variables); err != nil {
		return nil, fmt.Errorf("read diagnosis: unmarshal variables: %w", err)
	}

	if d.Tags, err = s.readTags(ctx, id); err != nil {
		return nil, err
	}
	if d.Outputs, err = s.readOutputs(ctx, id); err != nil {
		return nil, err
	}
	if d.EndTags, err = s.readEndTags(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// readTags returns tags in allocation order.
func (s *Store) readTags(ctx context.Context, id string) ([]ir.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag_id, tag_type, value, parents
		FROM tags
		WHERE diagnosis_id = ?
		ORDER BY tag_id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	tags := []ir.Tag{}
	for rows.Next() {
		var (
			t       ir.Tag
			tagID   int
			value   string
			parents string
		)
		if err := rows.Scan(&tagID, &t.Type, &value, &parents); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.ID = ir.TagID(tagID)
		if err := json.Unmarshal([]byte(value), &t.Value); err != nil {
			return nil, fmt.Errorf("tag %d: unmarshal value: %w", tagID, err)
		}
		if t.Parents, err = unmarshalIDs(parents); err != nil {
			return nil, fmt.Errorf("tag %d: unmarshal parents: %w", tagID, err)
		}
		if len(t.Parents) == 0 {
			t.Parents = nil
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// readOutputs returns rule outputs in seq order with their condition
// failures attached.
func (s *Store) readOutputs(ctx context.Context, id string) ([]ir.RuleOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, rule, tag_type, input_tags, tags
		FROM rule_outputs
		WHERE diagnosis_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query rule outputs: %w", err)
	}
	defer rows.Close()

	outputs := []ir.RuleOutput{}
	bySeq := make(map[int64]int)
	for rows.Next() {
		var (
			out       ir.RuleOutput
			inputTags string
			tags      string
		)
		if err := rows.Scan(&out.Seq, &out.Rule, &out.TagType, &inputTags, &tags); err != nil {
			return nil, fmt.Errorf("scan rule output: %w", err)
		}
		if out.InputTags, err = unmarshalIDs(inputTags); err != nil {
			return nil, fmt.Errorf("output %d: unmarshal input tags: %w", out.Seq, err)
		}
		if out.Tags, err = unmarshalIDs(tags); err != nil {
			return nil, fmt.Errorf("output %d: unmarshal tags: %w", out.Seq, err)
		}
		if len(out.Tags) == 0 {
			out.Tags = nil
		}
		bySeq[out.Seq] = len(outputs)
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule outputs: %w", err)
	}
	rows.Close()

	failures, err := s.db.QueryContext(ctx, `
		SELECT seq, condition_name, hint
		FROM condition_failures
		WHERE diagnosis_id = ?
		ORDER BY seq ASC, ordinal ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query condition failures: %w", err)
	}
	defer failures.Close()

	for failures.Next() {
		var (
			seq int64
			cf  ir.ConditionFailure
		)
		if err := failures.Scan(&seq, &cf.Condition, &cf.Hint); err != nil {
			return nil, fmt.Errorf("scan condition failure: %w", err)
		}
		i, ok := bySeq[seq]
		if !ok {
			return nil, fmt.Errorf("condition failure for unknown output %d", seq)
		}
		outputs[i].ConditionFailures = append(outputs[i].ConditionFailures, cf)
	}
	if err := failures.Err(); err != nil {
		return nil, fmt.Errorf("iterate condition failures: %w", err)
	}
	return outputs, nil
}

func (s *Store) readEndTags(ctx context.Context, id string) ([]ir.TagID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag_id FROM end_tags WHERE diagnosis_id = ? ORDER BY tag_id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query end tags: %w", err)
	}
	defer rows.Close()

	ids := []ir.TagID{}
	for rows.Next() {
		var tagID int
		if err := rows.Scan(&tagID); err != nil {
			return nil, fmt.Errorf("scan end tag: %w", err)
		}
		ids = append(ids, ir.TagID(tagID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate end tags: %w", err)
	}
	return ids, nil
}

// ListDiagnoses returns a summary of every stored diagnosis.
// Ids are UUIDv7, so id order is creation order.
func (s *Store) ListDiagnoses(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.session_id, d.input_digest,
			(SELECT COUNT(*) FROM tags t WHERE t.diagnosis_id = d.id),
			(SELECT COUNT(*) FROM end_tags e WHERE e.diagnosis_id = d.id)
		FROM diagnoses d
		ORDER BY d.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query diagnoses: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.InputDigest, &sum.Tags, &sum.EndTags); err != nil {
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnoses: %w", err)
	}
	return out, nil
}

// FindByDigest returns the ids of diagnoses of the same input and
// variables, in id order.
func (s *Store) FindByDigest(ctx context.Context, digest string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM diagnoses WHERE input_digest = ? ORDER BY id COLLATE BINARY ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("query diagnoses by digest: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan diagnosis id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnosis ids: %w", err)
	}
	return ids, nil
}
