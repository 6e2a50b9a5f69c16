package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"splitcoord/internal/amount"
)

// Database defines the interface for all persistence operations.
// The Coordination Engine and the Reconciler depend on this interface, so
// their unit tests can substitute an in-memory fake.
type Database interface {
	// Connection management
	Ping(ctx context.Context) error
	Close()
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Split lifecycle
	CreateSplit(ctx context.Context, split *Split, legs []SplitParticipant) (*SplitDetail, error)
	GetSplit(ctx context.Context, id int64) (*SplitDetail, error)
	SetSplitOnchainID(ctx context.Context, id int64, splitIDOnchain amount.Amount, createTxHash string) error
	SetSplitCreateTxHash(ctx context.Context, id int64, createTxHash string) error
	MarkSettled(ctx context.Context, id int64) error
	ListOrphanCreates(ctx context.Context, limit int) ([]Split, error)
	DeleteSplit(ctx context.Context, id int64) error

	// Participants
	MarkParticipantApproved(ctx context.Context, splitID int64, participant string) error
	MarkParticipantUsedOnchain(ctx context.Context, splitID int64, participant string) error

	// Signatures
	CreateOrGetSignature(ctx context.Context, sig *SplitSignature) (*SplitSignature, bool, error)
	GetSignatureByID(ctx context.Context, id int64) (*SplitSignature, error)
	GetSignature(ctx context.Context, splitID int64, participant string, salt [32]byte) (*SplitSignature, error)
	TransitionSignatureStatus(ctx context.Context, id int64, from, to SignatureStatus, reason *string) error
	SetSignatureValue(ctx context.Context, id int64, signature []byte, status SignatureStatus) error
	ListValidSignatures(ctx context.Context, splitID int64) ([]SplitSignature, error)

	// Supported tokens
	ListSupportedTokens(ctx context.Context, chainID int64) ([]SupportedToken, error)
	GetSupportedToken(ctx context.Context, chainID int64, address string) (*SupportedToken, error)
}

// Ensure DB implements Database interface
var _ Database = (*DB)(nil)
