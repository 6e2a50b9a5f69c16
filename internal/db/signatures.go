package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// scanSignature scans one row shaped like the SELECT list used by
// GetSplit/GetSignatureByID/GetSignature/ListValidSignatures.
func scanSignature(row pgx.Row) (SplitSignature, error) {
	var sig SplitSignature
	var salt []byte
	err := row.Scan(&sig.ID, &sig.SplitID, &sig.Participant, &sig.Amount, &sig.Deadline, &salt,
		&sig.Signature, &sig.Status, &sig.Reason, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		return SplitSignature{}, fmt.Errorf("db: scan signature: %w", err)
	}
	copy(sig.Salt[:], salt)
	return sig, nil
}

// CreateOrGetSignature idempotently inserts a PENDING signature row for
// (splitId, participant, salt). If the row already exists it is returned
// unchanged (ok=false), mirroring the teacher's idempotent-insert idiom for
// ON CONFLICT DO NOTHING ... RETURNING followed by a fallback SELECT.
func (db *DB) CreateOrGetSignature(ctx context.Context, sig *SplitSignature) (*SplitSignature, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO split_signatures (split_id, participant, amount, deadline, salt, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (split_id, participant, salt) DO NOTHING
		RETURNING id
	`, sig.SplitID, sig.Participant, sig.Amount, sig.Deadline, sig.Salt[:], sig.Signature, SignatureStatusPending).Scan(&id)

	if err == nil {
		sig.ID = id
		sig.Status = SignatureStatusPending
		return sig, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("db: insert signature: %w", err)
	}

	existing, getErr := db.GetSignature(ctx, sig.SplitID, sig.Participant, sig.Salt)
	if getErr != nil {
		return nil, false, fmt.Errorf("db: fetch existing signature after conflict: %w", getErr)
	}
	return existing, false, nil
}

const signatureSelectList = `
	SELECT id, split_id, participant, amount, deadline, salt, signature, status, reason, created_at, updated_at
	FROM split_signatures`

// GetSignatureByID loads a single signature by primary key.
func (db *DB) GetSignatureByID(ctx context.Context, id int64) (*SplitSignature, error) {
	sig, err := scanSignature(db.QueryRow(ctx, signatureSelectList+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("db: get signature %d: %w", id, err)
	}
	return &sig, nil
}

// GetSignature loads the unique (split, participant, salt) signature row.
func (db *DB) GetSignature(ctx context.Context, splitID int64, participant string, salt [32]byte) (*SplitSignature, error) {
	sig, err := scanSignature(db.QueryRow(ctx, signatureSelectList+` WHERE split_id = $1 AND participant = $2 AND salt = $3`,
		splitID, participant, salt[:]))
	if err != nil {
		return nil, fmt.Errorf("db: get signature for split %d participant %s: %w", splitID, participant, err)
	}
	return &sig, nil
}

// TransitionSignatureStatus performs a CAS-style UPDATE ... WHERE status =
// $from, mirroring the teacher's payment TransitionStatus idiom. Returns an
// error if no row matched (either the id doesn't exist, or it wasn't in the
// expected `from` state).
func (db *DB) TransitionSignatureStatus(ctx context.Context, id int64, from, to SignatureStatus, reason *string) error {
	tag, err := db.ExecResult(ctx, `
		UPDATE split_signatures
		SET status = $3, reason = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to, reason)
	if err != nil {
		return fmt.Errorf("db: transition signature %d %s->%s: %w", id, from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: signature %d not in expected status %s", id, from)
	}
	return nil
}

// SetSignatureValue stores the submitted signature bytes and advances the
// row out of PENDING in one statement, used by SubmitSignature.
func (db *DB) SetSignatureValue(ctx context.Context, id int64, signature []byte, status SignatureStatus) error {
	tag, err := db.ExecResult(ctx, `
		UPDATE split_signatures
		SET signature = $2, status = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, signature, status, SignatureStatusPending)
	if err != nil {
		return fmt.Errorf("db: set signature value %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: signature %d not in PENDING status", id)
	}
	return nil
}

// ListValidSignatures returns every VALID signature for a split, the set
// Settle derives its item list from when the caller omits explicit items.
func (db *DB) ListValidSignatures(ctx context.Context, splitID int64) ([]SplitSignature, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := db.pool.Query(ctx, signatureSelectList+` WHERE split_id = $1 AND status = $2 ORDER BY id`,
		splitID, SignatureStatusValid)
	if err != nil {
		return nil, fmt.Errorf("db: list valid signatures for split %d: %w", splitID, err)
	}
	defer rows.Close()

	var out []SplitSignature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
