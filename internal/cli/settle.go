package cli

import "fmt"

// SettleSplit asks the coordination service to settle splitID on-chain
// using every VALID stored signature.
func SettleSplit(apiURL string, splitID int64) error {
	client := NewAPIClient(apiURL)
	resp, err := client.Settle(splitID)
	if err != nil {
		return fmt.Errorf("settle split: %w", err)
	}

	fmt.Println(successStyle.Render("✓"), "settled, tx:", resp.TxHash)
	return nil
}
