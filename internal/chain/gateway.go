// Package chain implements the Chain Gateway: all on-chain reads and writes
// the Coordination Engine needs against the split coordinator contract and
// the ERC-20 tokens it moves, following the go-ethereum transaction-signing
// and log-decoding idiom used throughout the pack's EVM provider code.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"splitcoord/internal/amount"
)

// Leg is one participant's share of a split being created on-chain.
type Leg struct {
	Participant common.Address
	Amount      amount.Amount
}

// coordinatorLeg mirrors the coordinator contract's `(address,uint256)`
// tuple component order for ABI packing; go-ethereum's abi package matches
// struct fields to tuple components by name, case-insensitively.
type coordinatorLeg struct {
	Participant common.Address
	Amount      *big.Int
}

// Gateway wraps a read-only ethclient.Client and an optional executor key
// enabling writes (createSplit/settleSplit). A Gateway built without an
// executor key can still serve reads (allowance checks, log parsing) but
// Write operations return ErrNoExecutor.
type Gateway struct {
	client      *ethclient.Client
	chainID     *big.Int
	coordinator common.Address
	coordABI    abi.ABI
	erc20ABI    abi.ABI
	executor    *ecdsa.PrivateKey
	executorAdr common.Address
}

// ErrNoExecutor is returned by write operations when the gateway was built
// without an executor private key.
var ErrNoExecutor = fmt.Errorf("chain: no executor key configured, write operations disabled")

// New dials rpcURL and returns a Gateway bound to the coordinator contract
// address. executorKeyHex may be empty to build a read-only gateway.
func New(ctx context.Context, rpcURL string, chainID int64, coordinatorAddress string, executorKeyHex string) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc: %w", err)
	}

	coordABI, err := abi.JSON(strings.NewReader(coordinatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse coordinator abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}

	g := &Gateway{
		client:      client,
		chainID:     big.NewInt(chainID),
		coordinator: common.HexToAddress(coordinatorAddress),
		coordABI:    coordABI,
		erc20ABI:    erc20ABI,
	}

	if executorKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(executorKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("chain: invalid executor key: %w", err)
		}
		g.executor = key
		g.executorAdr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return g, nil
}

// HasExecutor reports whether this gateway can sign write transactions.
func (g *Gateway) HasExecutor() bool {
	return g.executor != nil
}

// BlockNumber is a cheap liveness probe for the health check.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// ERC20Allowance returns the amount spender is approved to move out of
// owner's token balance.
func (g *Gateway) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (amount.Amount, error) {
	data, err := g.erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return amount.Zero, fmt.Errorf("chain: pack allowance: %w", err)
	}

	result, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return amount.Zero, fmt.Errorf("chain: call allowance: %w", err)
	}

	var raw *big.Int
	if err := g.erc20ABI.UnpackIntoInterface(&raw, "allowance", result); err != nil {
		return amount.Zero, fmt.Errorf("chain: unpack allowance: %w", err)
	}
	return amount.FromBigInt(raw), nil
}

// CreateOnchain submits createSplit and waits for the receipt. The returned
// receipt may represent success without a decodable SplitCreated event; the
// caller (Coordination Engine) decides what to do with that partial state.
func (g *Gateway) CreateOnchain(ctx context.Context, payer, token common.Address, legs []Leg, deadline amount.Amount, metaHash [32]byte) (*types.Receipt, error) {
	if g.executor == nil {
		return nil, ErrNoExecutor
	}

	packedLegs := make([]coordinatorLeg, len(legs))
	for i, leg := range legs {
		packedLegs[i] = coordinatorLeg{Participant: leg.Participant, Amount: leg.Amount.BigInt()}
	}

	data, err := g.coordABI.Pack("createSplit", payer, token, packedLegs, deadline.BigInt(), metaHash)
	if err != nil {
		return nil, fmt.Errorf("chain: pack createSplit: %w", err)
	}

	return g.sendAndWait(ctx, data)
}

// Settle submits settleSplit with one (v,r,s) triple per participant and
// waits for the receipt.
func (g *Gateway) Settle(ctx context.Context, splitID amount.Amount, participants []common.Address, amounts []amount.Amount, deadlines []amount.Amount, salts [][32]byte, vs []uint8, rs [][32]byte, ss [][32]byte) (*types.Receipt, error) {
	if g.executor == nil {
		return nil, ErrNoExecutor
	}

	bigAmounts := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		bigAmounts[i] = a.BigInt()
	}
	bigDeadlines := make([]*big.Int, len(deadlines))
	for i, d := range deadlines {
		bigDeadlines[i] = d.BigInt()
	}

	data, err := g.coordABI.Pack("settleSplit", splitID.BigInt(), participants, bigAmounts, bigDeadlines, salts, vs, rs, ss)
	if err != nil {
		return nil, fmt.Errorf("chain: pack settleSplit: %w", err)
	}

	return g.sendAndWait(ctx, data)
}

func (g *Gateway) sendAndWait(ctx context.Context, data []byte) (*types.Receipt, error) {
	nonce, err := g.client.PendingNonceAt(ctx, g.executorAdr)
	if err != nil {
		return nil, fmt.Errorf("chain: get nonce: %w", err)
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.executorAdr,
		To:   &g.coordinator,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, g.coordinator, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), g.executor)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("chain: send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("chain: wait mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("chain: transaction reverted: %s", signedTx.Hash().Hex())
	}
	return receipt, nil
}

// TransactionReceipt re-fetches a past transaction's receipt by hash, used
// by the Reconciler to retry decoding a createSplit event after the fact.
func (g *Gateway) TransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	receipt, err := g.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("chain: fetch receipt %s: %w", txHash, err)
	}
	return receipt, nil
}

// ParseSplitCreated scans a receipt's logs for a SplitCreated event and
// returns the on-chain split id. Returns (Zero, false, nil) if no such
// event is present and could not be decoded — the orphan-create case.
func (g *Gateway) ParseSplitCreated(receipt *types.Receipt) (amount.Amount, bool, error) {
	event := g.coordABI.Events["SplitCreated"]
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		splitID := new(big.Int).SetBytes(log.Topics[1].Bytes())
		return amount.FromBigInt(splitID), true, nil
	}
	return amount.Zero, false, nil
}

// ReceiptTxHash is a convenience accessor used when persisting the orphan
// create_tx_hash for later reconciliation.
func ReceiptTxHash(receipt *types.Receipt) string {
	return receipt.TxHash.Hex()
}
