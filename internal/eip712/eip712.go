// Package eip712 builds and verifies the ApproveSplit typed-data signature
// that authorizes a participant's leg of a split, following the EIP-712
// domain-separator construction and recovery approach used throughout the
// pack's EVM provider code.
package eip712

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"splitcoord/internal/amount"
)

// DomainConfig carries the values that parameterize the EIP712Domain.
type DomainConfig struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// Message is the ApproveSplit typed-data payload for one participant leg.
type Message struct {
	Participant common.Address
	SplitID     amount.Amount
	Token       common.Address
	Payer       common.Address
	Amount      amount.Amount
	Deadline    amount.Amount
	Salt        [32]byte
}

var messageTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"ApproveSplit": []apitypes.Type{
		{Name: "participant", Type: "address"},
		{Name: "splitId", Type: "uint256"},
		{Name: "token", Type: "address"},
		{Name: "payer", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "salt", Type: "bytes32"},
	},
}

// BuildDomain returns the apitypes.TypedDataDomain for the given config, with
// the verifying contract normalized to its EIP-55 checksummed form.
func BuildDomain(cfg DomainConfig) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              cfg.Name,
		Version:           cfg.Version,
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(cfg.ChainID)),
		VerifyingContract: common.HexToAddress(cfg.VerifyingContract).Hex(),
	}
}

// typedData assembles the full EIP-712 document for a message under a domain.
func typedData(domain apitypes.TypedDataDomain, msg Message) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       messageTypes,
		PrimaryType: "ApproveSplit",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"participant": msg.Participant.Hex(),
			"splitId":     msg.SplitID.String(),
			"token":       msg.Token.Hex(),
			"payer":       msg.Payer.Hex(),
			"amount":      msg.Amount.String(),
			"deadline":    msg.Deadline.String(),
			"salt":        msg.Salt[:],
		},
	}
}

// EncodeMessage computes the EIP-712 digest (the 0x1901-prefixed hash that a
// signer actually signs) for the given domain and message.
func EncodeMessage(domain apitypes.TypedDataDomain, msg Message) ([32]byte, error) {
	td := typedData(domain, msg)

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return [32]byte{}, fmt.Errorf("eip712: hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return [32]byte{}, fmt.Errorf("eip712: hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, messageHash...)

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(rawData))
	return digest, nil
}

// RecoverSigner recovers the EIP-55 checksummed address that produced the
// given 65-byte (r||s||v) signature over digest. v may be in either the
// 0/1 or 27/28 form.
func RecoverSigner(digest [32]byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("eip712: signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("eip712: invalid recovery id %d", sig[64])
	}

	pubKey, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("eip712: recover pubkey: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// DomainMap returns the EIP712Domain fields in the JSON shape a wallet's
// typed-data signing request expects.
func DomainMap(domain apitypes.TypedDataDomain) map[string]any {
	return map[string]any{
		"name":              domain.Name,
		"version":           domain.Version,
		"chainId":           domain.ChainId.ToInt().String(),
		"verifyingContract": domain.VerifyingContract,
	}
}

// TypesMap returns the {typeName: [{name,type}, ...]} type graph for the
// ApproveSplit typed-data document.
func TypesMap() map[string]any {
	out := make(map[string]any, len(messageTypes))
	for name, fields := range messageTypes {
		fl := make([]map[string]string, len(fields))
		for i, f := range fields {
			fl[i] = map[string]string{"name": f.Name, "type": f.Type}
		}
		out[name] = fl
	}
	return out
}

// MessageMap returns the ApproveSplit message fields in their wire form:
// checksummed addresses, decimal-string integers, 0x-prefixed salt.
func MessageMap(msg Message) map[string]any {
	return map[string]any{
		"participant": msg.Participant.Hex(),
		"splitId":     msg.SplitID.String(),
		"token":       msg.Token.Hex(),
		"payer":       msg.Payer.Hex(),
		"amount":      msg.Amount.String(),
		"deadline":    msg.Deadline.String(),
		"salt":        "0x" + hex.EncodeToString(msg.Salt[:]),
	}
}

// Verify reports whether signature was produced by expectedSigner over the
// ApproveSplit message under domain.
func Verify(domain apitypes.TypedDataDomain, msg Message, signature []byte, expectedSigner common.Address) (bool, error) {
	digest, err := EncodeMessage(domain, msg)
	if err != nil {
		return false, err
	}
	recovered, err := RecoverSigner(digest, signature)
	if err != nil {
		return false, err
	}
	return recovered == expectedSigner, nil
}
