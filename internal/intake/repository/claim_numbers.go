package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimNumberGenerator allocates "CLM-YYYY-NNNNNN" claim numbers from a
// per-year Postgres sequence row, the same atomic upsert-and-return shape
// ImportPackageStore.NextPackageNumber uses for package numbers.
type ClaimNumberGenerator struct {
	pool *pgxpool.Pool
}

// NewClaimNumberGenerator builds a ClaimNumberGenerator over pool.
func NewClaimNumberGenerator(pool *pgxpool.Pool) *ClaimNumberGenerator {
	return &ClaimNumberGenerator{pool: pool}
}

func (c *ClaimNumberGenerator) NextClaimNumber(ctx context.Context, year int) (string, error) {
	var seq int
	err := c.pool.QueryRow(ctx, `
		INSERT INTO intake_claim_number_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = intake_claim_number_sequences.last_value + 1
		RETURNING last_value
	`, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate claim number for %d: %w", year, err)
	}
	return fmt.Sprintf("CLM-%d-%06d", year, seq), nil
}
