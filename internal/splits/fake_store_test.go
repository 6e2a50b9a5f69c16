package splits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"splitcoord/internal/amount"
	"splitcoord/internal/db"
)

// fakeStore is an in-memory db.Database used to unit test the Coordination
// Engine without a real Postgres instance, in the spirit of the teacher's
// handler tests that stub their dependencies directly.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	nextSigID int64
	splits    map[int64]*db.Split
	legs      map[int64][]db.SplitParticipant
	sigs      map[int64]*db.SplitSignature
	tokens    []db.SupportedToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		splits: map[int64]*db.Split{},
		legs:   map[int64][]db.SplitParticipant{},
		sigs:   map[int64]*db.SplitSignature{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close()                         {}
func (f *fakeStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("fakeStore: BeginTx not supported")
}

func (f *fakeStore) CreateSplit(ctx context.Context, split *db.Split, legs []db.SplitParticipant) (*db.SplitDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	split.ID = f.nextID
	for i := range legs {
		legs[i].ID = int64(i + 1)
		legs[i].SplitID = split.ID
	}
	cp := *split
	f.splits[split.ID] = &cp
	f.legs[split.ID] = legs
	return &db.SplitDetail{Split: cp, Participants: legs}, nil
}

func (f *fakeStore) GetSplit(ctx context.Context, id int64) (*db.SplitDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore: split %d not found", id)
	}
	var sigs []db.SplitSignature
	for _, sig := range f.sigs {
		if sig.SplitID == id {
			sigs = append(sigs, *sig)
		}
	}
	return &db.SplitDetail{Split: *s, Participants: f.legs[id], Signatures: sigs}, nil
}

func (f *fakeStore) SetSplitOnchainID(ctx context.Context, id int64, splitIDOnchain amount.Amount, createTxHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return fmt.Errorf("fakeStore: split %d not found", id)
	}
	s.SplitIDOnchain = &splitIDOnchain
	s.CreateTxHash = &createTxHash
	return nil
}

func (f *fakeStore) SetSplitCreateTxHash(ctx context.Context, id int64, createTxHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return fmt.Errorf("fakeStore: split %d not found", id)
	}
	s.CreateTxHash = &createTxHash
	return nil
}

func (f *fakeStore) MarkSettled(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return fmt.Errorf("fakeStore: split %d not found", id)
	}
	s.Settled = true
	return nil
}

func (f *fakeStore) ListOrphanCreates(ctx context.Context, limit int) ([]db.Split, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Split
	for _, s := range f.splits {
		if s.SplitIDOnchain == nil && s.CreateTxHash != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteSplit(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.splits, id)
	delete(f.legs, id)
	return nil
}

func (f *fakeStore) MarkParticipantApproved(ctx context.Context, splitID int64, participant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	legs := f.legs[splitID]
	for i := range legs {
		if sameAddress(legs[i].Participant, participant) {
			if legs[i].ApprovedOffchainAt == nil {
				now := time.Now()
				legs[i].ApprovedOffchainAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("fakeStore: participant %s not found", participant)
}

func (f *fakeStore) MarkParticipantUsedOnchain(ctx context.Context, splitID int64, participant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	legs := f.legs[splitID]
	for i := range legs {
		if sameAddress(legs[i].Participant, participant) {
			if legs[i].UsedOnchainAt == nil {
				now := time.Now()
				legs[i].UsedOnchainAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("fakeStore: participant %s not found", participant)
}

func (f *fakeStore) CreateOrGetSignature(ctx context.Context, sig *db.SplitSignature) (*db.SplitSignature, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sigs {
		if existing.SplitID == sig.SplitID && sameAddress(existing.Participant, sig.Participant) && existing.Salt == sig.Salt {
			cp := *existing
			return &cp, false, nil
		}
	}
	f.nextSigID++
	cp := *sig
	cp.ID = f.nextSigID
	f.sigs[cp.ID] = &cp
	out := cp
	return &out, true, nil
}

func (f *fakeStore) GetSignatureByID(ctx context.Context, id int64) (*db.SplitSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sig, ok := f.sigs[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore: signature %d not found", id)
	}
	cp := *sig
	return &cp, nil
}

func (f *fakeStore) GetSignature(ctx context.Context, splitID int64, participant string, salt [32]byte) (*db.SplitSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sig := range f.sigs {
		if sig.SplitID == splitID && sameAddress(sig.Participant, participant) && sig.Salt == salt {
			cp := *sig
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("fakeStore: signature not found")
}

func (f *fakeStore) TransitionSignatureStatus(ctx context.Context, id int64, from, to db.SignatureStatus, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sig, ok := f.sigs[id]
	if !ok {
		return fmt.Errorf("fakeStore: signature %d not found", id)
	}
	if sig.Status != from {
		return fmt.Errorf("fakeStore: signature %d status is %s, not %s", id, sig.Status, from)
	}
	sig.Status = to
	sig.Reason = reason
	return nil
}

func (f *fakeStore) SetSignatureValue(ctx context.Context, id int64, signature []byte, status db.SignatureStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sig, ok := f.sigs[id]
	if !ok {
		return fmt.Errorf("fakeStore: signature %d not found", id)
	}
	sig.Signature = signature
	sig.Status = status
	return nil
}

func (f *fakeStore) ListValidSignatures(ctx context.Context, splitID int64) ([]db.SplitSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.SplitSignature
	for _, sig := range f.sigs {
		if sig.SplitID == splitID && sig.Status == db.SignatureStatusValid {
			out = append(out, *sig)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSupportedTokens(ctx context.Context, chainID int64) ([]db.SupportedToken, error) {
	var out []db.SupportedToken
	for _, t := range f.tokens {
		if t.ChainID == chainID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSupportedToken(ctx context.Context, chainID int64, address string) (*db.SupportedToken, error) {
	for _, t := range f.tokens {
		if t.ChainID == chainID && sameAddress(t.Address, address) {
			cp := t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("fakeStore: token not found")
}

var _ db.Database = (*fakeStore)(nil)
