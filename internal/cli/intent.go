package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// FetchIntent requests the EIP-712 typed data for participant's leg of
// splitID and writes it to outPath as JSON for a later `splitctl sign`.
func FetchIntent(apiURL string, splitID int64, participant, outPath string) error {
	client := NewAPIClient(apiURL)

	td, err := client.FetchApproveIntent(splitID, participant)
	if err != nil {
		return fmt.Errorf("fetch approve intent: %w", err)
	}

	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal typed data: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Println(successStyle.Render("✓"), "wrote typed data to", outPath)
	fmt.Println(infoStyle.Render("next: splitctl sign " + outPath))
	return nil
}
