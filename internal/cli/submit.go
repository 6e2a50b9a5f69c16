package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// Submit reads a SignedIntent written by Sign and posts it to splitID's
// signatures endpoint.
func Submit(apiURL string, splitID int64, signedIntentPath string) error {
	raw, err := os.ReadFile(signedIntentPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", signedIntentPath, err)
	}
	var in SignedIntent
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse signed intent: %w", err)
	}

	client := NewAPIClient(apiURL)
	resp, err := client.SubmitSignature(splitID, SubmitSignatureRequest{
		Participant: in.Participant,
		Amount:      in.Amount,
		Salt:        in.Salt,
		Deadline:    in.Deadline,
		Signature:   in.Signature,
	})
	if err != nil {
		return fmt.Errorf("submit signature: %w", err)
	}

	fmt.Println(successStyle.Render("✓"), "signature status:", resp.Status)
	return nil
}
