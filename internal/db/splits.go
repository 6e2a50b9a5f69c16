package db

import (
	"context"
	"fmt"
	"time"

	"splitcoord/internal/amount"
)

// CreateSplit inserts a Split and its participant legs in one transaction.
func (db *DB) CreateSplit(ctx context.Context, split *Split, legs []SplitParticipant) (*SplitDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin create split: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO splits (chain_id, contract, payer, token, total_amount, deadline, meta_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, split.ChainID, split.Contract, split.Payer, split.Token, split.TotalAmount, split.Deadline, split.MetaHash).
		Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: insert split: %w", err)
	}
	split.ID = id
	split.CreatedAt = createdAt
	split.UpdatedAt = updatedAt

	for i := range legs {
		legs[i].SplitID = id
		err = tx.QueryRow(ctx, `
			INSERT INTO split_participants (split_id, participant, amount)
			VALUES ($1, $2, $3)
			RETURNING id
		`, id, legs[i].Participant, legs[i].Amount).Scan(&legs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("db: insert participant %s: %w", legs[i].Participant, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("db: commit create split: %w", err)
	}

	return &SplitDetail{Split: *split, Participants: legs}, nil
}

// GetSplit loads a Split with its participants and signatures.
func (db *DB) GetSplit(ctx context.Context, id int64) (*SplitDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s Split
	err := db.pool.QueryRow(ctx, `
		SELECT id, chain_id, contract, split_id_onchain, payer, token, total_amount,
		       deadline, meta_hash, create_tx_hash, settled, created_at, updated_at
		FROM splits WHERE id = $1
	`, id).Scan(&s.ID, &s.ChainID, &s.Contract, &s.SplitIDOnchain, &s.Payer, &s.Token, &s.TotalAmount,
		&s.Deadline, &s.MetaHash, &s.CreateTxHash, &s.Settled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: get split %d: %w", id, err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, split_id, participant, amount, approved_offchain_at, used_onchain_at
		FROM split_participants WHERE split_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("db: list participants for split %d: %w", id, err)
	}
	var participants []SplitParticipant
	for rows.Next() {
		var p SplitParticipant
		if err := rows.Scan(&p.ID, &p.SplitID, &p.Participant, &p.Amount, &p.ApprovedOffchainAt, &p.UsedOnchainAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("db: scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate participants: %w", err)
	}

	sigRows, err := db.pool.Query(ctx, `
		SELECT id, split_id, participant, amount, deadline, salt, signature, status, reason, created_at, updated_at
		FROM split_signatures WHERE split_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("db: list signatures for split %d: %w", id, err)
	}
	var sigs []SplitSignature
	for sigRows.Next() {
		sig, err := scanSignature(sigRows)
		if err != nil {
			sigRows.Close()
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	sigRows.Close()
	if err := sigRows.Err(); err != nil {
		return nil, fmt.Errorf("db: iterate signatures: %w", err)
	}

	return &SplitDetail{Split: s, Participants: participants, Signatures: sigs}, nil
}

// SetSplitOnchainID backfills the on-chain split id once the SplitCreated
// event has been decoded, either inline at create time or later by the
// Reconciler.
func (db *DB) SetSplitOnchainID(ctx context.Context, id int64, splitIDOnchain amount.Amount, createTxHash string) error {
	tag, err := db.ExecResult(ctx, `
		UPDATE splits SET split_id_onchain = $2, create_tx_hash = $3, updated_at = now()
		WHERE id = $1 AND split_id_onchain IS NULL
	`, id, splitIDOnchain, createTxHash)
	if err != nil {
		return fmt.Errorf("db: set onchain id for split %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: split %d already has an onchain id or does not exist", id)
	}
	return nil
}

// SetSplitCreateTxHash persists the transaction hash of a createSplit call
// whose SplitCreated event could not be decoded, for later reconciliation.
func (db *DB) SetSplitCreateTxHash(ctx context.Context, id int64, createTxHash string) error {
	tag, err := db.ExecResult(ctx, `
		UPDATE splits SET create_tx_hash = $2, updated_at = now()
		WHERE id = $1 AND split_id_onchain IS NULL
	`, id, createTxHash)
	if err != nil {
		return fmt.Errorf("db: set create tx hash for split %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: split %d already has an onchain id or does not exist", id)
	}
	return nil
}

// MarkSettled flips settled false->true, guarding against a concurrent
// double-settle with an optimistic WHERE clause.
func (db *DB) MarkSettled(ctx context.Context, id int64) error {
	tag, err := db.ExecResult(ctx, `
		UPDATE splits SET settled = true, updated_at = now() WHERE id = $1 AND settled = false
	`, id)
	if err != nil {
		return fmt.Errorf("db: mark settled %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: split %d already settled or does not exist", id)
	}
	return nil
}

// DeleteSplit removes a Split row and (via ON DELETE CASCADE) its
// participant and signature rows. Used only as the compensating action
// after a failed on-chain createSplit, per spec §9 "retain this behavior,
// but guard it with a compensating transaction clearly scoped to the one
// row just inserted."
func (db *DB) DeleteSplit(ctx context.Context, id int64) error {
	return db.Exec(ctx, `DELETE FROM splits WHERE id = $1`, id)
}

// ListOrphanCreates returns splits that have a create tx hash but no
// decoded on-chain split id yet, for the Reconciler to retry.
func (db *DB) ListOrphanCreates(ctx context.Context, limit int) ([]Split, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := db.pool.Query(ctx, `
		SELECT id, chain_id, contract, split_id_onchain, payer, token, total_amount,
		       deadline, meta_hash, create_tx_hash, settled, created_at, updated_at
		FROM splits
		WHERE split_id_onchain IS NULL AND create_tx_hash IS NOT NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list orphan creates: %w", err)
	}
	defer rows.Close()

	var out []Split
	for rows.Next() {
		var s Split
		if err := rows.Scan(&s.ID, &s.ChainID, &s.Contract, &s.SplitIDOnchain, &s.Payer, &s.Token, &s.TotalAmount,
			&s.Deadline, &s.MetaHash, &s.CreateTxHash, &s.Settled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db: scan orphan split: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkParticipantApproved stamps approved_offchain_at the first time a
// participant's signature for a split becomes VALID.
func (db *DB) MarkParticipantApproved(ctx context.Context, splitID int64, participant string) error {
	return db.Exec(ctx, `
		UPDATE split_participants SET approved_offchain_at = now()
		WHERE split_id = $1 AND participant = $2 AND approved_offchain_at IS NULL
	`, splitID, participant)
}

// MarkParticipantUsedOnchain stamps used_onchain_at after a successful Settle.
func (db *DB) MarkParticipantUsedOnchain(ctx context.Context, splitID int64, participant string) error {
	return db.Exec(ctx, `
		UPDATE split_participants SET used_onchain_at = now()
		WHERE split_id = $1 AND participant = $2 AND used_onchain_at IS NULL
	`, splitID, participant)
}
