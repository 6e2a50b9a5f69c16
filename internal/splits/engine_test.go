package splits

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitcoord/internal/amount"
	"splitcoord/internal/chain"
	"splitcoord/internal/db"
	"splitcoord/internal/eip712"
)

const testContract = "0x1111111111111111111111111111111111111111"
const testChainID = 534352

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	gw, err := chain.New(context.Background(), "http://rpc.test", testChainID, testContract, "")
	require.NoError(t, err)
	e := New(store, gw, testChainID, testContract, eip712.DomainConfig{
		Name: "SplitsCoordinator", Version: "1", ChainID: testChainID, VerifyingContract: testContract,
	})
	return e, store
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func createTestSplit(t *testing.T, e *Engine, payer, token, p1, p2 string) int64 {
	t.Helper()
	res, err := e.CreateSplit(context.Background(), CreateSplitInput{
		Payer: payer,
		Token: token,
		Legs: []LegInput{
			{Participant: p1, Amount: "600"},
			{Participant: p2, Amount: "400"},
		},
	})
	require.NoError(t, err)
	return res.ID
}

func TestCreateSplitOffchainHappyPath(t *testing.T) {
	e, store := newTestEngine(t)
	payerKey, p1Key, p2Key := mustKey(t), mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	p2 := crypto.PubkeyToAddress(p2Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, p2)

	detail, err := store.GetSplit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1000", detail.Split.TotalAmount.String())
	assert.Len(t, detail.Participants, 2)
	assert.False(t, detail.Split.Settled)
}

func TestCreateSplitRejectsDuplicateParticipant(t *testing.T) {
	e, _ := newTestEngine(t)
	key := mustKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := e.CreateSplit(context.Background(), CreateSplitInput{
		Payer: addr,
		Token: "0x2222222222222222222222222222222222222222",
		Legs: []LegInput{
			{Participant: addr, Amount: "100"},
			{Participant: addr, Amount: "200"},
		},
	})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindConflict, se.Kind)
}

func TestCreateSplitRejectsZeroLegAmount(t *testing.T) {
	e, _ := newTestEngine(t)
	key := mustKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := e.CreateSplit(context.Background(), CreateSplitInput{
		Payer: addr,
		Token: "0x2222222222222222222222222222222222222222",
		Legs:  []LegInput{{Participant: addr, Amount: "0"}},
	})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindInvalidInput, se.Kind)
}

func TestCreateOnchainWithoutExecutorFails(t *testing.T) {
	e, _ := newTestEngine(t)
	key := mustKey(t)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := e.CreateSplit(context.Background(), CreateSplitInput{
		Payer:         addr,
		Token:         "0x2222222222222222222222222222222222222222",
		Legs:          []LegInput{{Participant: addr, Amount: "100"}},
		CreateOnchain: true,
	})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindMisconfigured, se.Kind)
}

// messageFromResponse rebuilds the eip712.Message a TypedDataResponse
// describes, the way a wallet would before signing it.
func messageFromResponse(t *testing.T, resp *TypedDataResponse) eip712.Message {
	t.Helper()
	salt, err := parseSalt(resp.Message["salt"].(string))
	require.NoError(t, err)
	amt, err := amount.Parse(resp.Message["amount"].(string))
	require.NoError(t, err)
	deadline, err := amount.Parse(resp.Message["deadline"].(string))
	require.NoError(t, err)
	splitID, err := amount.Parse(resp.Message["splitId"].(string))
	require.NoError(t, err)
	return eip712.Message{
		Participant: common.HexToAddress(resp.Message["participant"].(string)),
		SplitID:     splitID,
		Token:       common.HexToAddress(resp.Message["token"].(string)),
		Payer:       common.HexToAddress(resp.Message["payer"].(string)),
		Amount:      amt,
		Deadline:    deadline,
		Salt:        salt,
	}
}

// signApproveIntent fetches the typed data for participant, signs it with
// key, and returns the wire values SubmitSignature expects.
func signApproveIntent(t *testing.T, e *Engine, splitID int64, participant string, key *ecdsa.PrivateKey) (amt, salt, sig string, deadline *string) {
	t.Helper()
	resp, err := e.GenerateApproveIntent(context.Background(), ApproveIntentInput{
		SplitID: splitID, Participant: participant,
	})
	require.NoError(t, err)

	domain := eip712.BuildDomain(eip712.DomainConfig{Name: "SplitsCoordinator", Version: "1", ChainID: testChainID, VerifyingContract: testContract})
	msg := messageFromResponse(t, resp)
	digest, err := eip712.EncodeMessage(domain, msg)
	require.NoError(t, err)

	sigBytes, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	sigBytes[64] += 27

	return msg.Amount.String(), "0x" + hex.EncodeToString(msg.Salt[:]), "0x" + hex.EncodeToString(sigBytes), nil
}

func TestApproveAndSubmitSignatureHappyPath(t *testing.T) {
	e, _ := newTestEngine(t)
	payerKey, p1Key := mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	amt, salt, sig, deadline := signApproveIntent(t, e, id, p1, p1Key)
	result, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, "VALID", result.Status)
}

func TestSubmitSignatureWrongSignerRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	payerKey, p1Key, attackerKey := mustKey(t), mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	amt, salt, sig, deadline := signApproveIntent(t, e, id, p1, attackerKey)
	_, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
	})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindInvalidInput, se.Kind)
}

func TestSubmitSignatureExpiredDeadlineRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	payerKey, p1Key := mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	resp, err := e.GenerateApproveIntent(context.Background(), ApproveIntentInput{
		SplitID: id, Participant: p1, Deadline: strPtr("1"),
	})
	require.NoError(t, err)

	domain := eip712.BuildDomain(eip712.DomainConfig{Name: "SplitsCoordinator", Version: "1", ChainID: testChainID, VerifyingContract: testContract})
	msg := messageFromResponse(t, resp)
	digest, err := eip712.EncodeMessage(domain, msg)
	require.NoError(t, err)
	sigBytes, err := crypto.Sign(digest[:], p1Key)
	require.NoError(t, err)
	sigBytes[64] += 27

	e.Now = func() time.Time { return time.Unix(1000, 0) }

	_, err = e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: msg.Amount.String(),
		Salt: "0x" + hex.EncodeToString(msg.Salt[:]), Signature: "0x" + hex.EncodeToString(sigBytes),
	})
	require.Error(t, err)
}

func TestSubmitSignatureDoubleSubmitIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	payerKey, p1Key := mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	amt, salt, sig, deadline := signApproveIntent(t, e, id, p1, p1Key)
	_, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
	})
	require.NoError(t, err)

	result, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, "VALID", result.Status)
}

func TestSettleFailsWithIncompleteSignatures(t *testing.T) {
	e, _ := newTestEngineWithExecutor(t)
	payerKey, p1Key := mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	_, err := e.Settle(context.Background(), SettleInput{SplitID: id})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindInvalidInput, se.Kind)
}

// jsonRPCMethodResponder dispatches on the JSON-RPC "method" field, echoing
// the request id, the way reconciler_test.go stubs a single method — this
// variant answers the several methods a raw transaction send-and-wait needs.
func jsonRPCMethodResponder(results map[string]any) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var body struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		result, ok := results[body.Method]
		if !ok {
			return httpmock.NewJsonResponse(200, map[string]any{
				"jsonrpc": "2.0", "id": body.ID,
				"error": map[string]any{"code": -32601, "message": "method not found: " + body.Method},
			})
		}
		return httpmock.NewJsonResponse(200, map[string]any{"jsonrpc": "2.0", "id": body.ID, "result": result})
	}
}

// settleReceipt is a minimal successful transaction receipt, shaped like the
// one reconciler_test.go builds for SplitCreated, but with no logs since
// settleSplit emits none that this service decodes.
func settleReceipt(txHash string) map[string]any {
	return map[string]any{
		"transactionHash":   txHash,
		"transactionIndex":  "0x0",
		"blockHash":         "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		"blockNumber":       "0x1",
		"from":              "0xcccccccccccccccccccccccccccccccccccccccc",
		"to":                testContract,
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"contractAddress":   nil,
		"logsBloom":         "0x" + fmt.Sprintf("%0512d", 0),
		"status":            "0x1",
		"type":              "0x0",
		"effectiveGasPrice": "0x1",
		"logs":              []map[string]any{},
	}
}

// newTestEngineWithExecutor builds an Engine whose gateway has a real
// executor key and whose RPC transport is stubbed to accept one
// createSplit/settleSplit transaction send-and-wait cycle successfully.
func newTestEngineWithExecutor(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	executorKey := mustKey(t)
	executorKeyHex := hex.EncodeToString(crypto.FromECDSA(executorKey))
	txHash := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	httpmock.RegisterResponder("POST", "http://rpc.test", jsonRPCMethodResponder(map[string]any{
		"eth_chainId":               fmt.Sprintf("0x%x", testChainID),
		"eth_getTransactionCount":   "0x0",
		"eth_gasPrice":              "0x3b9aca00",
		"eth_estimateGas":           "0x5208",
		"eth_sendRawTransaction":    txHash,
		"eth_getTransactionReceipt": settleReceipt(txHash),
	}))

	store := newFakeStore()
	gw, err := chain.New(context.Background(), "http://rpc.test", testChainID, testContract, executorKeyHex)
	require.NoError(t, err)
	e := New(store, gw, testChainID, testContract, eip712.DomainConfig{
		Name: "SplitsCoordinator", Version: "1", ChainID: testChainID, VerifyingContract: testContract,
	})
	return e, store
}

func TestSettleHappyPathMarksParticipantsAndSignaturesUsedOnchain(t *testing.T) {
	e, store := newTestEngineWithExecutor(t)
	payerKey, p1Key, p2Key := mustKey(t), mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	p2 := crypto.PubkeyToAddress(p2Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, p2)

	for _, leg := range []struct {
		addr string
		key  *ecdsa.PrivateKey
	}{{p1, p1Key}, {p2, p2Key}} {
		amt, salt, sig, deadline := signApproveIntent(t, e, id, leg.addr, leg.key)
		_, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
			SplitID: id, Participant: leg.addr, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
		})
		require.NoError(t, err)
	}

	result, err := e.Settle(context.Background(), SettleInput{SplitID: id})
	require.NoError(t, err)
	assert.NotEmpty(t, result.TxHash)

	detail, err := store.GetSplit(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, detail.Split.Settled)
	require.Len(t, detail.Participants, 2)
	for _, p := range detail.Participants {
		assert.NotNil(t, p.UsedOnchainAt, "participant %s should be marked used on-chain", p.Participant)
	}
	require.Len(t, detail.Signatures, 2)
	for _, sig := range detail.Signatures {
		assert.Equal(t, db.SignatureStatusUsedOnchain, sig.Status)
	}
}

func TestSettleWithoutExecutorIsMisconfigured(t *testing.T) {
	e, _ := newTestEngine(t)
	payerKey, p1Key := mustKey(t), mustKey(t)
	payer := crypto.PubkeyToAddress(payerKey.PublicKey).Hex()
	p1 := crypto.PubkeyToAddress(p1Key.PublicKey).Hex()
	token := "0x2222222222222222222222222222222222222222"

	id := createTestSplit(t, e, payer, token, p1, payer)

	amt, salt, sig, deadline := signApproveIntent(t, e, id, p1, p1Key)
	_, err := e.SubmitSignature(context.Background(), SubmitSignatureInput{
		SplitID: id, Participant: p1, Amount: amt, Salt: salt, Signature: sig, Deadline: deadline,
	})
	require.NoError(t, err)

	_, err = e.Settle(context.Background(), SettleInput{SplitID: id})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindMisconfigured, se.Kind)
}

func strPtr(s string) *string { return &s }
