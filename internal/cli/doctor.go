package cli

import (
	"fmt"

	"splitcoord/internal/walletkey"
)

// Doctor checks that splitctl has a usable OS keyring backend.
func Doctor() error {
	fmt.Println(titleStyle.Render("splitctl doctor"))
	fmt.Println()

	available, backend, err := walletkey.CheckAvailability()
	if !available {
		fmt.Println(errorStyle.Render("✗"), "no secure keyring available:", err)
		fmt.Println(infoStyle.Render("install gnome-keyring (Secret Service) or 'pass', then re-run"))
		return fmt.Errorf("keyring unavailable")
	}

	fmt.Println(successStyle.Render("✓"), "keyring backend:", backend)
	return nil
}
