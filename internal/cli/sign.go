package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitcoord/internal/amount"
	"splitcoord/internal/eip712"
	"splitcoord/internal/walletkey"
)

// SignedIntent is the JSON shape written by Sign and read by Submit.
type SignedIntent struct {
	Participant string  `json:"participant"`
	Amount      string  `json:"amount"`
	Salt        string  `json:"salt"`
	Deadline    *string `json:"deadline,omitempty"`
	Signature   string  `json:"signature"`
}

// Sign loads typed data written by FetchIntent, signs it with the keyring's
// stored key, and writes a SignedIntent to outPath.
func Sign(intentPath, outPath string) error {
	raw, err := os.ReadFile(intentPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", intentPath, err)
	}
	var td TypedData
	if err := json.Unmarshal(raw, &td); err != nil {
		return fmt.Errorf("parse typed data: %w", err)
	}

	domain, msg, err := typedDataToMessage(td)
	if err != nil {
		return fmt.Errorf("decode typed data: %w", err)
	}

	w, err := walletkey.Open()
	if err != nil {
		return err
	}
	if !w.Exists() {
		return fmt.Errorf("no signing key stored, run 'splitctl wallet create' first")
	}
	if !strings.EqualFold(w.Address.Hex(), msg.Participant.Hex()) {
		fmt.Println(warningStyle.Render("⚠"), "stored key", w.Address.Hex(), "differs from intent participant", msg.Participant.Hex())
	}

	sig, err := w.SignApproveSplit(domain, msg)
	if err != nil {
		return fmt.Errorf("sign typed data: %w", err)
	}

	deadline := msg.Deadline.String()
	out := SignedIntent{
		Participant: msg.Participant.Hex(),
		Amount:      msg.Amount.String(),
		Salt:        "0x" + hex.EncodeToString(msg.Salt[:]),
		Deadline:    &deadline,
		Signature:   "0x" + hex.EncodeToString(sig),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signed intent: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Println(successStyle.Render("✓"), "signed by", w.Address.Hex())
	fmt.Println(infoStyle.Render("next: splitctl submit <splitID> " + outPath))
	return nil
}

// typedDataToMessage reconstructs an eip712.DomainConfig and eip712.Message
// from the JSON shape the approve-intent endpoint returns (eip712.DomainMap /
// eip712.MessageMap), so splitctl never needs to re-derive the signing rules
// itself — it signs exactly what the server asked for.
func typedDataToMessage(td TypedData) (eip712.DomainConfig, eip712.Message, error) {
	domain := eip712.DomainConfig{}
	if name, ok := td.Domain["name"].(string); ok {
		domain.Name = name
	}
	if version, ok := td.Domain["version"].(string); ok {
		domain.Version = version
	}
	if chainID, ok := td.Domain["chainId"].(string); ok {
		n, ok := new(big.Int).SetString(chainID, 10)
		if !ok {
			return domain, eip712.Message{}, fmt.Errorf("invalid domain chainId %q", chainID)
		}
		domain.ChainID = n.Int64()
	}
	if vc, ok := td.Domain["verifyingContract"].(string); ok {
		domain.VerifyingContract = vc
	}

	msg := eip712.Message{}
	participant, _ := td.Message["participant"].(string)
	splitID, _ := td.Message["splitId"].(string)
	token, _ := td.Message["token"].(string)
	payer, _ := td.Message["payer"].(string)
	amt, _ := td.Message["amount"].(string)
	deadline, _ := td.Message["deadline"].(string)
	salt, _ := td.Message["salt"].(string)

	msg.Participant = common.HexToAddress(participant)
	msg.Token = common.HexToAddress(token)
	msg.Payer = common.HexToAddress(payer)

	splitIDAmt, err := amount.Parse(splitID)
	if err != nil {
		return domain, msg, fmt.Errorf("invalid splitId %q: %w", splitID, err)
	}
	msg.SplitID = splitIDAmt

	amountAmt, err := amount.Parse(amt)
	if err != nil {
		return domain, msg, fmt.Errorf("invalid amount %q: %w", amt, err)
	}
	msg.Amount = amountAmt

	deadlineAmt, err := amount.Parse(deadline)
	if err != nil {
		return domain, msg, fmt.Errorf("invalid deadline %q: %w", deadline, err)
	}
	msg.Deadline = deadlineAmt

	saltBytes, err := hex.DecodeString(strings.TrimPrefix(salt, "0x"))
	if err != nil || len(saltBytes) != 32 {
		return domain, msg, fmt.Errorf("invalid salt %q", salt)
	}
	copy(msg.Salt[:], saltBytes)

	return domain, msg, nil
}
