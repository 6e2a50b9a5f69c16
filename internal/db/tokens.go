package db

import (
	"context"
	"fmt"
)

// ListSupportedTokens returns the token catalog for a chain, enabled and
// disabled alike; callers filter on Enabled as needed.
func (db *DB) ListSupportedTokens(ctx context.Context, chainID int64) ([]SupportedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := db.pool.Query(ctx, `
		SELECT chain_id, address, symbol, name, decimals, enabled
		FROM supported_tokens WHERE chain_id = $1 ORDER BY symbol
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("db: list supported tokens for chain %d: %w", chainID, err)
	}
	defer rows.Close()

	var out []SupportedToken
	for rows.Next() {
		var t SupportedToken
		if err := rows.Scan(&t.ChainID, &t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.Enabled); err != nil {
			return nil, fmt.Errorf("db: scan supported token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetSupportedToken loads a single catalog entry by chain and address.
func (db *DB) GetSupportedToken(ctx context.Context, chainID int64, address string) (*SupportedToken, error) {
	var t SupportedToken
	err := db.QueryRow(ctx, `
		SELECT chain_id, address, symbol, name, decimals, enabled
		FROM supported_tokens WHERE chain_id = $1 AND address = $2
	`, chainID, address).Scan(&t.ChainID, &t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.Enabled)
	if err != nil {
		return nil, fmt.Errorf("db: get supported token %s on chain %d: %w", address, chainID, err)
	}
	return &t, nil
}
