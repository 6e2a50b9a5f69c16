package db

import (
	"time"

	"splitcoord/internal/amount"
)

// SignatureStatus is the closed set of states a SplitSignature can occupy.
type SignatureStatus string

const (
	SignatureStatusPending     SignatureStatus = "PENDING"
	SignatureStatusValid       SignatureStatus = "VALID"
	SignatureStatusUsedOnchain SignatureStatus = "USED_ONCHAIN"
	SignatureStatusExpired     SignatureStatus = "EXPIRED"
	SignatureStatusRejected    SignatureStatus = "REJECTED"
)

// Split is one coordinated multi-party ERC-20 payment split.
type Split struct {
	ID             int64
	ChainID        int64
	Contract       string
	SplitIDOnchain *amount.Amount
	Payer          string
	Token          string
	TotalAmount    amount.Amount
	Deadline       *time.Time
	MetaHash       *string
	CreateTxHash   *string
	Settled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SplitParticipant is one party's leg of a Split.
type SplitParticipant struct {
	ID                 int64
	SplitID            int64
	Participant        string
	Amount             amount.Amount
	ApprovedOffchainAt *time.Time
	UsedOnchainAt      *time.Time
}

// SplitSignature is one EIP-712 ApproveSplit signature submitted by a
// participant for a specific salt.
type SplitSignature struct {
	ID          int64
	SplitID     int64
	Participant string
	Amount      amount.Amount
	Deadline    *time.Time
	Salt        [32]byte
	Signature   []byte
	Status      SignatureStatus
	Reason      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SupportedToken is a read-only catalog entry of an ERC-20 token this
// service is configured to coordinate splits for.
type SupportedToken struct {
	ChainID  int64
	Address  string
	Symbol   string
	Name     string
	Decimals int
	Enabled  bool
}

// SplitDetail bundles a Split with its participants and signatures, the
// shape the Coordination Engine and Query/Serialization layer operate on.
type SplitDetail struct {
	Split        Split
	Participants []SplitParticipant
	Signatures   []SplitSignature
}
