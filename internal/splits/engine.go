package splits

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"splitcoord/internal/amount"
	"splitcoord/internal/chain"
	"splitcoord/internal/db"
	"splitcoord/internal/eip712"
)

// Engine is the Coordination Engine: it owns every invariant in the split
// state machine and is the only code path allowed to mutate Split,
// SplitParticipant and SplitSignature rows.
type Engine struct {
	store    db.Database
	gateway  *chain.Gateway
	chainID  int64
	contract common.Address
	domain   apitypes.TypedDataDomain

	// Now is overridable in tests to force deadline-expiry scenarios.
	Now func() time.Time
}

// New builds an Engine bound to one chain/contract pair and one EIP-712
// domain, per spec §9's "global chain/contract handles are explicit
// dependencies injected at construction."
func New(store db.Database, gateway *chain.Gateway, chainID int64, contractAddress string, domainCfg eip712.DomainConfig) *Engine {
	return &Engine{
		store:    store,
		gateway:  gateway,
		chainID:  chainID,
		contract: common.HexToAddress(contractAddress),
		domain:   eip712.BuildDomain(domainCfg),
		Now:      time.Now,
	}
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// splitIDForSigning implements the "splitId used for signing" rule: the
// on-chain id once present, otherwise the local row id. Every path that
// builds or verifies a typed-data message goes through this function so a
// signature produced against the local id is naturally rejected once the
// split graduates to an on-chain id.
func splitIDForSigning(s *db.Split) amount.Amount {
	if s.SplitIDOnchain != nil {
		return *s.SplitIDOnchain
	}
	return amount.FromUint64(uint64(s.ID))
}

func findLeg(legs []db.SplitParticipant, participant string) (db.SplitParticipant, bool) {
	for _, p := range legs {
		if sameAddress(p.Participant, participant) {
			return p, true
		}
	}
	return db.SplitParticipant{}, false
}

// CreateSplit implements spec §4.3 "Create Split".
func (e *Engine) CreateSplit(ctx context.Context, in CreateSplitInput) (*CreateSplitResult, error) {
	payer, err := parseAddress("payer", in.Payer)
	if err != nil {
		return nil, err
	}
	token, err := parseAddress("token", in.Token)
	if err != nil {
		return nil, err
	}
	if len(in.Legs) == 0 {
		return nil, newErr(KindInvalidInput, "at least one leg is required")
	}

	seen := map[string]bool{}
	legs := make([]db.SplitParticipant, 0, len(in.Legs))
	gwLegs := make([]chain.Leg, 0, len(in.Legs))
	total := amount.Zero
	for _, li := range in.Legs {
		addr, err := parseAddress("leg participant", li.Participant)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(addr.Hex())
		if seen[key] {
			return nil, newErr(KindConflict, "duplicate participant "+addr.Hex()+" in legs")
		}
		seen[key] = true

		amt, perr := amount.Parse(li.Amount)
		if perr != nil || amt.IsZero() {
			return nil, newErr(KindInvalidInput, "leg amount for "+addr.Hex()+" must be a positive integer")
		}

		legs = append(legs, db.SplitParticipant{Participant: addr.Hex(), Amount: amt})
		gwLegs = append(gwLegs, chain.Leg{Participant: addr, Amount: amt})
		total = amount.Add(total, amt)
	}
	if total.IsZero() {
		return nil, newErr(KindInvalidInput, "total amount must be positive")
	}

	var deadline *time.Time
	if in.Deadline != nil {
		d, derr := parseDeadline(*in.Deadline)
		if derr != nil {
			return nil, derr
		}
		deadline = d
	}

	metaHashStr, metaHashBytes, merr := parseMetaHash(in.MetaHash)
	if merr != nil {
		return nil, merr
	}

	if in.CreateOnchain && !e.gateway.HasExecutor() {
		return nil, newErr(KindMisconfigured, "executor key not configured, cannot create on-chain")
	}

	split := &db.Split{
		ChainID:     e.chainID,
		Contract:    e.contract.Hex(),
		Payer:       payer.Hex(),
		Token:       token.Hex(),
		TotalAmount: total,
		Deadline:    deadline,
		MetaHash:    metaHashStr,
	}
	detail, err := e.store.CreateSplit(ctx, split, legs)
	if err != nil {
		return nil, wrapErr(KindInternal, "persist split", err)
	}

	result := &CreateSplitResult{ID: detail.Split.ID}
	if !in.CreateOnchain {
		return result, nil
	}

	deadlineAmt := amount.FromUint64(uint64(unixOrZero(deadline)))
	receipt, err := e.gateway.CreateOnchain(ctx, payer, token, gwLegs, deadlineAmt, metaHashBytes)
	if err != nil {
		if delErr := e.store.DeleteSplit(ctx, detail.Split.ID); delErr != nil {
			slog.Error("failed to compensate orphan split after failed createSplit", "split_id", detail.Split.ID, "error", delErr)
		}
		return nil, wrapErr(KindChainFailed, "createSplit transaction failed", err)
	}

	txHash := chain.ReceiptTxHash(receipt)
	result.TxHash = txHash

	onchainID, found, perr := e.gateway.ParseSplitCreated(receipt)
	if perr != nil {
		slog.Warn("failed to decode SplitCreated event", "split_id", detail.Split.ID, "tx_hash", txHash, "error", perr)
	}
	if found {
		if err := e.store.SetSplitOnchainID(ctx, detail.Split.ID, onchainID, txHash); err != nil {
			slog.Error("failed to persist onchain split id", "split_id", detail.Split.ID, "error", err)
		}
	} else {
		// Orphan create: the transaction succeeded but the event could not be
		// decoded. Persist the tx hash for the Reconciler to retry later
		// instead of failing a create that already executed on-chain.
		if err := e.store.SetSplitCreateTxHash(ctx, detail.Split.ID, txHash); err != nil {
			slog.Error("failed to persist create tx hash for reconciliation", "split_id", detail.Split.ID, "error", err)
		}
	}

	return result, nil
}

// GenerateApproveIntent implements spec §4.3 "Generate Approve Intent".
func (e *Engine) GenerateApproveIntent(ctx context.Context, in ApproveIntentInput) (*TypedDataResponse, error) {
	detail, err := e.getActiveSplit(ctx, in.SplitID)
	if err != nil {
		return nil, err
	}

	leg, ok := findLeg(detail.Participants, in.Participant)
	if !ok {
		return nil, newErr(KindNotFound, "participant is not in this split")
	}

	deadline, err := e.resolveIntentDeadline(detail.Split.Deadline, in.Deadline)
	if err != nil {
		return nil, err
	}

	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, wrapErr(KindInternal, "generate salt", err)
	}

	sigRow := &db.SplitSignature{
		SplitID:     detail.Split.ID,
		Participant: leg.Participant,
		Amount:      leg.Amount,
		Deadline:    deadline,
		Salt:        salt,
		Status:      db.SignatureStatusPending,
	}
	if _, _, err := e.store.CreateOrGetSignature(ctx, sigRow); err != nil {
		return nil, wrapErr(KindInternal, "persist signature intent", err)
	}

	participantAddr := common.HexToAddress(leg.Participant)
	payerAddr := common.HexToAddress(detail.Split.Payer)
	tokenAddr := common.HexToAddress(detail.Split.Token)

	msg := eip712.Message{
		Participant: participantAddr,
		SplitID:     splitIDForSigning(&detail.Split),
		Token:       tokenAddr,
		Payer:       payerAddr,
		Amount:      leg.Amount,
		Deadline:    amount.FromUint64(uint64(unixOrZero(deadline))),
		Salt:        salt,
	}

	return &TypedDataResponse{
		Domain:      eip712.DomainMap(e.domain),
		Types:       eip712.TypesMap(),
		PrimaryType: "ApproveSplit",
		Message:     eip712.MessageMap(msg),
	}, nil
}

// resolveIntentDeadline implements the deadline-resolution rules in spec
// §4.3: a client deadline must not exceed the split's own deadline; absent a
// client deadline, the split's deadline (possibly nil) is inherited.
func (e *Engine) resolveIntentDeadline(splitDeadline *time.Time, clientDeadline *string) (*time.Time, error) {
	if clientDeadline == nil {
		return splitDeadline, nil
	}
	d, err := parseDeadline(*clientDeadline)
	if err != nil {
		return nil, err
	}
	if splitDeadline != nil && d != nil && d.After(*splitDeadline) {
		return nil, newErr(KindInvalidInput, "requested deadline exceeds the split's deadline")
	}
	return d, nil
}

// SubmitSignature implements spec §4.3 "Submit Signature".
func (e *Engine) SubmitSignature(ctx context.Context, in SubmitSignatureInput) (*SubmitSignatureResult, error) {
	detail, err := e.getActiveSplit(ctx, in.SplitID)
	if err != nil {
		return nil, err
	}

	leg, ok := findLeg(detail.Participants, in.Participant)
	if !ok {
		return nil, newErr(KindNotFound, "participant is not in this split")
	}
	amt, aerr := amount.Parse(in.Amount)
	if aerr != nil || amt.Cmp(leg.Amount) != 0 {
		return nil, newErr(KindInvalidInput, "amount does not match the participant's leg")
	}

	salt, serr := parseSalt(in.Salt)
	if serr != nil {
		return nil, serr
	}

	sigRow, gerr := e.store.GetSignature(ctx, detail.Split.ID, leg.Participant, salt)
	if gerr != nil {
		return nil, newErr(KindNotFound, "no pending signature intent for this salt")
	}

	switch sigRow.Status {
	case db.SignatureStatusUsedOnchain:
		return nil, newErr(KindConflict, "signature already used on-chain")
	case db.SignatureStatusValid:
		return &SubmitSignatureResult{Status: string(db.SignatureStatusValid)}, nil
	case db.SignatureStatusExpired, db.SignatureStatusRejected:
		return nil, newErr(KindConflict, "signature intent is no longer pending")
	}

	if in.Deadline != nil {
		d, derr := parseDeadline(*in.Deadline)
		if derr != nil {
			return nil, derr
		}
		if unixOrZero(d) != unixOrZero(sigRow.Deadline) {
			return nil, newErr(KindInvalidInput, "deadline does not match the stored intent")
		}
	}

	sigBytes, sherr := parseSignatureHex(in.Signature)
	if sherr != nil {
		return nil, sherr
	}

	msg := eip712.Message{
		Participant: common.HexToAddress(leg.Participant),
		SplitID:     splitIDForSigning(&detail.Split),
		Token:       common.HexToAddress(detail.Split.Token),
		Payer:       common.HexToAddress(detail.Split.Payer),
		Amount:      sigRow.Amount,
		Deadline:    amount.FromUint64(uint64(unixOrZero(sigRow.Deadline))),
		Salt:        salt,
	}
	digest, derr := eip712.EncodeMessage(e.domain, msg)
	if derr != nil {
		return nil, wrapErr(KindInternal, "encode typed data", derr)
	}
	signer, rerr := eip712.RecoverSigner(digest, sigBytes)
	if rerr != nil {
		return nil, wrapErr(KindInvalidInput, "could not recover signer from signature", rerr)
	}
	if !sameAddress(signer.Hex(), leg.Participant) {
		return nil, newErr(KindInvalidInput, "signer differs from participant")
	}

	if sigRow.Deadline != nil && unixOrZero(sigRow.Deadline) != 0 && e.Now().After(*sigRow.Deadline) {
		reason := "expired before validation"
		if terr := e.store.TransitionSignatureStatus(ctx, sigRow.ID, db.SignatureStatusPending, db.SignatureStatusExpired, &reason); terr != nil {
			slog.Error("failed to mark signature expired", "signature_id", sigRow.ID, "error", terr)
		}
		return nil, newErr(KindInvalidInput, "expired")
	}

	if err := e.store.SetSignatureValue(ctx, sigRow.ID, sigBytes, db.SignatureStatusValid); err != nil {
		return nil, wrapErr(KindInternal, "persist valid signature", err)
	}
	if err := e.store.MarkParticipantApproved(ctx, detail.Split.ID, leg.Participant); err != nil {
		return nil, wrapErr(KindInternal, "mark participant approved", err)
	}

	return &SubmitSignatureResult{Status: string(db.SignatureStatusValid)}, nil
}

// settleAssembledItem is one row of the arrays passed to the contract.
type settleAssembledItem struct {
	participant common.Address
	amount      amount.Amount
	deadline    amount.Amount
	salt        [32]byte
	signature   []byte
	leg         string // checksummed participant address, for post-commit bookkeeping
}

// Settle implements spec §4.3 "Settle".
func (e *Engine) Settle(ctx context.Context, in SettleInput) (*SettleResult, error) {
	detail, err := e.getActiveSplit(ctx, in.SplitID)
	if err != nil {
		return nil, err
	}

	if !e.gateway.HasExecutor() {
		return nil, newErr(KindMisconfigured, "executor key not configured, cannot settle on-chain")
	}

	var items []settleAssembledItem
	if len(in.Items) > 0 {
		items, err = e.assembleExplicitItems(ctx, detail, in.Items)
	} else {
		items, err = e.assembleStoredItems(ctx, detail)
	}
	if err != nil {
		return nil, err
	}

	if len(items) != len(detail.Participants) {
		return nil, newErr(KindInvalidInput, "signature count mismatch")
	}

	participants := make([]common.Address, len(items))
	amounts := make([]amount.Amount, len(items))
	deadlines := make([]amount.Amount, len(items))
	salts := make([][32]byte, len(items))
	vs := make([]uint8, len(items))
	rs := make([][32]byte, len(items))
	ss := make([][32]byte, len(items))
	for i, it := range items {
		participants[i] = it.participant
		amounts[i] = it.amount
		deadlines[i] = it.deadline
		salts[i] = it.salt
		v, r, s, verr := splitSignatureComponents(it.signature)
		if verr != nil {
			return nil, wrapErr(KindInvalidInput, "malformed signature for "+it.leg, verr)
		}
		vs[i], rs[i], ss[i] = v, r, s
	}

	splitID := splitIDForSigning(&detail.Split)
	receipt, serr := e.gateway.Settle(ctx, splitID, participants, amounts, deadlines, salts, vs, rs, ss)
	if serr != nil {
		return nil, wrapErr(KindChainFailed, "settleSplit transaction failed", serr)
	}

	if err := e.store.MarkSettled(ctx, detail.Split.ID); err != nil {
		slog.Error("chain settlement succeeded but failed to mark split settled", "split_id", detail.Split.ID, "error", err)
	}
	for _, it := range items {
		if err := e.store.MarkParticipantUsedOnchain(ctx, detail.Split.ID, it.leg); err != nil {
			slog.Error("failed to mark participant used on-chain", "split_id", detail.Split.ID, "participant", it.leg, "error", err)
		}
	}
	valid, lerr := e.store.ListValidSignatures(ctx, detail.Split.ID)
	if lerr == nil {
		for _, sig := range valid {
			reason := "settled"
			if terr := e.store.TransitionSignatureStatus(ctx, sig.ID, db.SignatureStatusValid, db.SignatureStatusUsedOnchain, &reason); terr != nil {
				slog.Error("failed to mark signature used on-chain", "signature_id", sig.ID, "error", terr)
			}
		}
	}

	return &SettleResult{TxHash: chain.ReceiptTxHash(receipt)}, nil
}

// assembleExplicitItems validates the caller-supplied items[] against the
// stored signature rows byte-for-byte, per the §12 settlement-divergence
// decision: any mismatch is rejected rather than silently accepted.
func (e *Engine) assembleExplicitItems(ctx context.Context, detail *db.SplitDetail, in []SettleItem) ([]settleAssembledItem, error) {
	out := make([]settleAssembledItem, 0, len(in))
	for _, item := range in {
		leg, ok := findLeg(detail.Participants, item.Participant)
		if !ok {
			return nil, newErr(KindNotFound, "item participant is not in this split")
		}
		amt, aerr := amount.Parse(item.Amount)
		if aerr != nil || amt.Cmp(leg.Amount) != 0 {
			return nil, newErr(KindInvalidInput, "item amount diverges from the leg amount")
		}
		salt, serr := parseSalt(item.Salt)
		if serr != nil {
			return nil, serr
		}
		sigRow, gerr := e.store.GetSignature(ctx, detail.Split.ID, leg.Participant, salt)
		if gerr != nil {
			return nil, newErr(KindNotFound, "no signature row for item")
		}
		if sigRow.Status != db.SignatureStatusValid {
			return nil, newErr(KindInvalidInput, "item signature is not VALID")
		}
		if item.Deadline != nil {
			d, derr := parseDeadline(*item.Deadline)
			if derr != nil {
				return nil, derr
			}
			if unixOrZero(d) != unixOrZero(sigRow.Deadline) {
				return nil, newErr(KindInvalidInput, "item deadline diverges from the stored signature")
			}
		}
		sigBytes, sherr := parseSignatureHex(item.Signature)
		if sherr != nil {
			return nil, sherr
		}
		if len(sigBytes) != len(sigRow.Signature) || !bytesEqual(sigBytes, sigRow.Signature) {
			return nil, newErr(KindInvalidInput, "item signature diverges from the stored signature")
		}

		out = append(out, settleAssembledItem{
			participant: common.HexToAddress(leg.Participant),
			amount:      leg.Amount,
			deadline:    amount.FromUint64(uint64(unixOrZero(sigRow.Deadline))),
			salt:        salt,
			signature:   sigRow.Signature,
			leg:         leg.Participant,
		})
	}
	return out, nil
}

// assembleStoredItems collects every VALID signature row for the split,
// deriving item fields from persisted state.
func (e *Engine) assembleStoredItems(ctx context.Context, detail *db.SplitDetail) ([]settleAssembledItem, error) {
	valid, err := e.store.ListValidSignatures(ctx, detail.Split.ID)
	if err != nil {
		return nil, wrapErr(KindInternal, "list valid signatures", err)
	}
	out := make([]settleAssembledItem, 0, len(valid))
	for _, sig := range valid {
		leg, ok := findLeg(detail.Participants, sig.Participant)
		if !ok {
			continue
		}
		out = append(out, settleAssembledItem{
			participant: common.HexToAddress(leg.Participant),
			amount:      leg.Amount,
			deadline:    amount.FromUint64(uint64(unixOrZero(sig.Deadline))),
			salt:        sig.Salt,
			signature:   sig.Signature,
			leg:         leg.Participant,
		})
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitSignatureComponents splits a 65-byte r||s||v signature into the
// (v, r, s) triple the coordinator contract's settleSplit expects.
func splitSignatureComponents(sig []byte) (uint8, [32]byte, [32]byte, error) {
	if len(sig) != 65 {
		return 0, [32]byte{}, [32]byte{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	var r, s [32]byte
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// CheckAllowance implements spec §4.3 "Check Allowance".
func (e *Engine) CheckAllowance(ctx context.Context, tokenStr, ownerStr string) (*AllowanceResult, error) {
	token, err := parseAddress("token", tokenStr)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", ownerStr)
	if err != nil {
		return nil, err
	}
	allowance, aerr := e.gateway.ERC20Allowance(ctx, token, owner, e.contract)
	if aerr != nil {
		return nil, wrapErr(KindChainFailed, "allowance probe failed", aerr)
	}
	return &AllowanceResult{
		Token:     token.Hex(),
		Owner:     owner.Hex(),
		Spender:   e.contract.Hex(),
		Allowance: allowance.String(),
	}, nil
}

// GetSplit implements the Query/Serialization "Get Split" read path.
func (e *Engine) GetSplit(ctx context.Context, id int64) (*SplitView, error) {
	detail, err := e.getActiveSplitAllowSettled(ctx, id)
	if err != nil {
		return nil, err
	}
	return serializeSplit(detail), nil
}

// ListTokens implements the Query/Serialization "List Tokens" read path.
func (e *Engine) ListTokens(ctx context.Context) ([]TokenView, error) {
	tokens, err := e.store.ListSupportedTokens(ctx, e.chainID)
	if err != nil {
		return nil, wrapErr(KindInternal, "list supported tokens", err)
	}
	out := make([]TokenView, len(tokens))
	for i, t := range tokens {
		out[i] = serializeToken(t)
	}
	return out, nil
}

// getActiveSplit loads a split, enforcing it belongs to this engine's
// chain/contract and is not yet settled.
func (e *Engine) getActiveSplit(ctx context.Context, id int64) (*db.SplitDetail, error) {
	detail, err := e.getActiveSplitAllowSettled(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Split.Settled {
		return nil, newErr(KindConflict, "split is already settled")
	}
	return detail, nil
}

func (e *Engine) getActiveSplitAllowSettled(ctx context.Context, id int64) (*db.SplitDetail, error) {
	detail, err := e.store.GetSplit(ctx, id)
	if err != nil {
		return nil, newErr(KindNotFound, "split not found")
	}
	if detail.Split.ChainID != e.chainID || !sameAddress(detail.Split.Contract, e.contract.Hex()) {
		return nil, newErr(KindNotFound, "split not found")
	}
	return detail, nil
}
