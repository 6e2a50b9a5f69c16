package splits

import (
	"encoding/hex"
	"time"

	"splitcoord/internal/db"
)

// LegInput is one (participant, amount) pair supplied to CreateSplit.
type LegInput struct {
	Participant string
	Amount      string
}

// CreateSplitInput is the Create Split request per spec §4.3.
type CreateSplitInput struct {
	Payer         string
	Token         string
	Legs          []LegInput
	Deadline      *string // ISO-8601, numeric seconds, or "0" for no expiry
	MetaHash      *string
	CreateOnchain bool
}

// CreateSplitResult is the Create Split response.
type CreateSplitResult struct {
	ID     int64  `json:"id"`
	TxHash string `json:"txHash,omitempty"`
}

// ApproveIntentInput is the Generate Approve Intent request.
type ApproveIntentInput struct {
	SplitID     int64
	Participant string
	Deadline    *string
}

// TypedDataResponse is the EIP-712 payload returned to a participant so
// their wallet can sign it directly.
type TypedDataResponse struct {
	Domain      map[string]any `json:"domain"`
	Types       map[string]any `json:"types"`
	PrimaryType string         `json:"primaryType"`
	Message     map[string]any `json:"message"`
}

// SubmitSignatureInput is the Submit Signature request.
type SubmitSignatureInput struct {
	SplitID     int64
	Participant string
	Amount      string
	Salt        string // 0x-prefixed 32-byte hex
	Deadline    *string
	Signature   string // 0x-prefixed 65-byte hex
}

// SubmitSignatureResult reports the resulting status of the signature row.
type SubmitSignatureResult struct {
	Status string `json:"status"`
}

// SettleItem is one explicit override entry accepted by Settle.
type SettleItem struct {
	Participant string
	Amount      string
	Deadline    *string
	Salt        string
	Signature   string
}

// SettleInput is the Settle request.
type SettleInput struct {
	SplitID int64
	Items   []SettleItem
}

// SettleResult is the Settle response.
type SettleResult struct {
	TxHash string `json:"txHash"`
}

// AllowanceResult is the Check Allowance response.
type AllowanceResult struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// ParticipantView is one participant leg in the serialized Split.
type ParticipantView struct {
	ID                 int64      `json:"id"`
	Participant        string     `json:"participant"`
	Amount             string     `json:"amount"`
	ApprovedOffchainAt *time.Time `json:"approvedOffchainAt"`
	UsedOnchainAt      *time.Time `json:"usedOnchainAt"`
}

// SignatureView is one signature row in the serialized Split.
type SignatureView struct {
	ID        int64      `json:"id"`
	Participant string   `json:"participant"`
	Amount    string     `json:"amount"`
	Deadline  *time.Time `json:"deadline"`
	Salt      string     `json:"salt"`
	Signature *string    `json:"signature"`
	Status    string     `json:"status"`
	Reason    *string    `json:"reason"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// SplitView is the canonical serialization of a Split per spec §4.5.
type SplitView struct {
	ID             int64             `json:"id"`
	ChainID        int64             `json:"chainId"`
	Contract       string            `json:"contract"`
	SplitIDOnchain *string           `json:"splitIdOnchain"`
	Payer          string            `json:"payer"`
	Token          string            `json:"token"`
	TotalAmount    string            `json:"totalAmount"`
	Deadline       *time.Time        `json:"deadline"`
	MetaHash       *string           `json:"metaHash"`
	Settled        bool              `json:"settled"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Participants   []ParticipantView `json:"participants"`
	Signatures     []SignatureView   `json:"signatures"`
}

// TokenView is a SupportedToken catalog entry.
type TokenView struct {
	ChainID  int64  `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Enabled  bool   `json:"enabled"`
}

// serializeSplit projects a db.SplitDetail into its canonical wire shape.
func serializeSplit(d *db.SplitDetail) *SplitView {
	v := &SplitView{
		ID:          d.Split.ID,
		ChainID:     d.Split.ChainID,
		Contract:    d.Split.Contract,
		Payer:       d.Split.Payer,
		Token:       d.Split.Token,
		TotalAmount: d.Split.TotalAmount.String(),
		Deadline:    d.Split.Deadline,
		MetaHash:    d.Split.MetaHash,
		Settled:     d.Split.Settled,
		CreatedAt:   d.Split.CreatedAt,
		UpdatedAt:   d.Split.UpdatedAt,
	}
	if d.Split.SplitIDOnchain != nil {
		s := d.Split.SplitIDOnchain.String()
		v.SplitIDOnchain = &s
	}
	for _, p := range d.Participants {
		v.Participants = append(v.Participants, ParticipantView{
			ID:                 p.ID,
			Participant:        p.Participant,
			Amount:             p.Amount.String(),
			ApprovedOffchainAt: p.ApprovedOffchainAt,
			UsedOnchainAt:      p.UsedOnchainAt,
		})
	}
	for _, s := range d.Signatures {
		sv := SignatureView{
			ID:          s.ID,
			Participant: s.Participant,
			Amount:      s.Amount.String(),
			Deadline:    s.Deadline,
			Salt:        "0x" + hex.EncodeToString(s.Salt[:]),
			Status:      string(s.Status),
			Reason:      s.Reason,
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
		}
		if len(s.Signature) > 0 {
			sig := "0x" + hex.EncodeToString(s.Signature)
			sv.Signature = &sig
		}
		v.Signatures = append(v.Signatures, sv)
	}
	return v
}

func serializeToken(t db.SupportedToken) TokenView {
	return TokenView{
		ChainID:  t.ChainID,
		Address:  t.Address,
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		Enabled:  t.Enabled,
	}
}
