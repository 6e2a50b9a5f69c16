package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitcoord/internal/amount"
	"splitcoord/internal/chain"
	"splitcoord/internal/db"
)

const testContract = "0x1111111111111111111111111111111111111111"
const testChainID = 534352

// fakeStore is a minimal in-memory db.Database, in the spirit of the
// Coordination Engine's own test fake, scoped to what the Reconciler touches.
type fakeStore struct {
	mu      sync.Mutex
	splits  map[int64]*db.Split
	onchain map[int64]amount.Amount
}

func newFakeStore(orphans ...db.Split) *fakeStore {
	f := &fakeStore{splits: map[int64]*db.Split{}, onchain: map[int64]amount.Amount{}}
	for i := range orphans {
		s := orphans[i]
		f.splits[s.ID] = &s
	}
	return f
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close()                         {}
func (f *fakeStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("fakeStore: BeginTx not supported")
}
func (f *fakeStore) CreateSplit(ctx context.Context, split *db.Split, legs []db.SplitParticipant) (*db.SplitDetail, error) {
	return nil, fmt.Errorf("fakeStore: not supported")
}
func (f *fakeStore) GetSplit(ctx context.Context, id int64) (*db.SplitDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore: split %d not found", id)
	}
	return &db.SplitDetail{Split: *s}, nil
}
func (f *fakeStore) SetSplitOnchainID(ctx context.Context, id int64, splitIDOnchain amount.Amount, createTxHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.splits[id]
	if !ok {
		return fmt.Errorf("fakeStore: split %d not found", id)
	}
	s.SplitIDOnchain = &splitIDOnchain
	f.onchain[id] = splitIDOnchain
	return nil
}
func (f *fakeStore) SetSplitCreateTxHash(ctx context.Context, id int64, createTxHash string) error {
	return nil
}
func (f *fakeStore) MarkSettled(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) ListOrphanCreates(ctx context.Context, limit int) ([]db.Split, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Split
	for _, s := range f.splits {
		if s.SplitIDOnchain == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}
func (f *fakeStore) DeleteSplit(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) MarkParticipantApproved(ctx context.Context, splitID int64, participant string) error {
	return nil
}
func (f *fakeStore) MarkParticipantUsedOnchain(ctx context.Context, splitID int64, participant string) error {
	return nil
}
func (f *fakeStore) CreateOrGetSignature(ctx context.Context, sig *db.SplitSignature) (*db.SplitSignature, bool, error) {
	return nil, false, fmt.Errorf("fakeStore: not supported")
}
func (f *fakeStore) GetSignatureByID(ctx context.Context, id int64) (*db.SplitSignature, error) {
	return nil, fmt.Errorf("fakeStore: not supported")
}
func (f *fakeStore) GetSignature(ctx context.Context, splitID int64, participant string, salt [32]byte) (*db.SplitSignature, error) {
	return nil, fmt.Errorf("fakeStore: not supported")
}
func (f *fakeStore) TransitionSignatureStatus(ctx context.Context, id int64, from, to db.SignatureStatus, reason *string) error {
	return nil
}
func (f *fakeStore) SetSignatureValue(ctx context.Context, id int64, signature []byte, status db.SignatureStatus) error {
	return nil
}
func (f *fakeStore) ListValidSignatures(ctx context.Context, splitID int64) ([]db.SplitSignature, error) {
	return nil, nil
}
func (f *fakeStore) ListSupportedTokens(ctx context.Context, chainID int64) ([]db.SupportedToken, error) {
	return nil, nil
}
func (f *fakeStore) GetSupportedToken(ctx context.Context, chainID int64, address string) (*db.SupportedToken, error) {
	return nil, fmt.Errorf("fakeStore: not supported")
}

var _ db.Database = (*fakeStore)(nil)

func newTestGateway(t *testing.T) *chain.Gateway {
	t.Helper()
	gw, err := chain.New(context.Background(), "http://rpc.test", testChainID, testContract, "")
	require.NoError(t, err)
	return gw
}

func jsonRPCResponder(result any) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var body struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		return httpmock.NewJsonResponse(200, map[string]any{
			"jsonrpc": "2.0",
			"id":      json.RawMessage(body.ID),
			"result":  result,
		})
	}
}

func TestSweepNoOrphansDoesNothing(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	store := newFakeStore()
	r := New(store, newTestGateway(t))
	r.sweep(context.Background())

	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestReconcileOneSkipsSplitWithoutCreateTxHash(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	store := newFakeStore(db.Split{ID: 1})
	r := New(store, newTestGateway(t))
	r.reconcileOne(context.Background(), db.Split{ID: 1})

	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestReconcileOneBackfillsOnchainIDFromReceipt(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	txHash := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	eventTopic := crypto.Keccak256Hash([]byte("SplitCreated(uint256,address,address)")).Hex()
	splitIDTopic := "0x000000000000000000000000000000000000000000000000000000000000002a"
	payerTopic := "0x000000000000000000000000dddddddddddddddddddddddddddddddddddddddd"

	receipt := map[string]any{
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
		"logs": []map[string]any{
			{
				"address":          testContract,
				"topics":           []string{eventTopic, splitIDTopic, payerTopic},
				"data":             "0x",
				"blockNumber":      "0x1",
				"transactionHash":  txHash,
				"transactionIndex": "0x0",
				"blockHash":        "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
				"logIndex":         "0x0",
				"removed":          false,
			},
		},
	}
	httpmock.RegisterResponder("POST", "http://rpc.test", jsonRPCResponder(receipt))

	store := newFakeStore(db.Split{ID: 9, CreateTxHash: &txHash})
	r := New(store, newTestGateway(t))
	r.reconcileOne(context.Background(), db.Split{ID: 9, CreateTxHash: &txHash})

	got, ok := store.onchain[9]
	require.True(t, ok, "expected split 9 to be backfilled")
	assert.Equal(t, "42", got.String())
}
