package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
)

// WriteDiagnosis inserts a diagnosis with its tags, rule outputs,
// condition failures and end tags in one transaction.
// Uses ON CONFLICT(id) DO NOTHING on the diagnosis row: writing the same
// id twice is a no-op and returns inserted=false.
func (s *Store) WriteDiagnosis(ctx context.Context, d *Diagnosis) (inserted bool, err error) {
	input, vars, err := encodeHeader(d)
	if err != nil {
		return false, fmt.Errorf("write diagnosis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write diagnosis: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO diagnoses
		(id, session_id, input_digest, input, variables, engine_version, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.SessionID,
		d.InputDigest,
		input,
		vars,
		d.EngineVersion,
		d.SchemaVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write diagnosis: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write diagnosis: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := writeTags(ctx, tx, d.ID, d.Tags); err != nil {
		return false, err
	}
	if err := writeOutputs(ctx, tx, d.ID, d.Outputs); err != nil {
		return false, err
	}
	for _, id := range d.EndTags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO end_tags (diagnosis_id, tag_id) VALUES (?, ?)`,
			d.ID, int(id),
		); err != nil {
			return false, fmt.Errorf("write end tag %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write diagnosis: commit: %w", err)
	}
	return true, nil
}

func encodeHeader(d *Diagnosis) (input, vars string, err error) {
	if d.ID == "" {
		return "", "", fmt.Errorf("diagnosis id is required")
	}
	in := d.Input
	if len(in) == 0 {
		in = []byte("null")
	}
	varsJSON, err := marshalJSON(d.Variables)
	if err != nil {
		return "", "", fmt.Errorf("marshal variables: %w", err)
	}
	return string(in), string(varsJSON), nil
}

func writeTags(ctx context.Context, tx *sql.Tx, diagnosisID string, tags []ir.Tag) error {
	for _, t := range tags {
		value, err := marshalJSON(t.Value)
		if err != nil {
			return fmt.Errorf("write tag %d: marshal value: %w", t.ID, err)
		}
		parents, err := marshalJSON(nonNilIDs(t.Parents))
		if err != nil {
			return fmt.Errorf("write tag %d: marshal parents: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (diagnosis_id, tag_id, tag_type, value, parents)
			VALUES (?, ?, ?, ?, ?)
		`, diagnosisID, int(t.ID), t.Type, string(value), string(parents)); err != nil {
			return fmt.Errorf("write tag %d: %w", t.ID, err)
		}
	}
	return nil
}

func writeOutputs(ctx context.Context, tx *sql.Tx, diagnosisID string, outputs []ir.RuleOutput) error {
	for _, out := range outputs {
		inputTags, err := marshalJSON(nonNilIDs(out.InputTags))
		if err != nil {
			return fmt.Errorf("write output %d: %w", out.Seq, err)
		}
		tags, err := marshalJSON(nonNilIDs(out.Tags))
		if err != nil {
			return fmt.Errorf("write output %d: %w", out.Seq, err)
		}
		key, err := ir.ExecutionKey(out.Rule, out.InputTags)
		if err != nil {
			return fmt.Errorf("write output %d: %w", out.Seq, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_outputs
			(diagnosis_id, seq, rule, tag_type, input_tags, tags, execution_key)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, diagnosisID, out.Seq, out.Rule, out.TagType, string(inputTags), string(tags), key); err != nil {
			return fmt.Errorf("write output %d: %w", out.Seq, err)
		}

		for i, cf := range out.ConditionFailures {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO condition_failures
				(diagnosis_id, seq, ordinal, condition_name, hint)
				VALUES (?, ?, ?, ?, ?)
			`, diagnosisID, out.Seq, i, cf.Condition, cf.Hint); err != nil {
				return fmt.Errorf("write condition failure %d/%d: %w", out.Seq, i, err)
			}
		}
	}
	return nil
}

func nonNilIDs(ids []ir.TagID) []ir.TagID {
	if ids == nil {
		return []ir.TagID{}
	}
	return ids
}
