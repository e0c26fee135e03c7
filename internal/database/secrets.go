package database

import (
	"database/sql"
	"fmt"

	"github.com/fusionswap/relayer/internal/types"
)

// SecretRepository persists StoredSecret ciphertexts — never plaintext, the
// Secret Coordinator never hands plaintext to anything outside reveal()
// (spec.md §4.3/§5). cmd/relayer constructs it but neither saves to nor
// loads from it, so secrets pending reveal do not survive a restart.
type SecretRepository struct {
	db *sql.DB
}

// NewSecretRepository creates a new SecretRepository.
func NewSecretRepository(db *sql.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// Save upserts a StoredSecret's ciphertext and metadata.
func (r *SecretRepository) Save(s *types.StoredSecret) error {
	_, err := r.db.Exec(`
		INSERT INTO stored_secrets (
			order_id, index, hash, ciphertext, status, reveal_at,
			revealed_at, partial_fill_index, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (order_id, index) DO UPDATE SET
			status = EXCLUDED.status,
			reveal_at = EXCLUDED.reveal_at,
			revealed_at = EXCLUDED.revealed_at`,
		s.OrderID, s.Index, s.Hash[:], s.Ciphertext, string(s.Status),
		nullTime(s.RevealAt), nullTime(s.RevealedAt), s.PartialFillIndex, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save stored secret %s/%d: %w", s.OrderID, s.Index, err)
	}
	return nil
}

// LoadAll reconstructs every persisted StoredSecret (ciphertext untouched).
// The Secret Coordinator has no method to be seeded from the result.
func (r *SecretRepository) LoadAll() ([]*types.StoredSecret, error) {
	rows, err := r.db.Query(`
		SELECT order_id, index, hash, ciphertext, status, reveal_at,
			   revealed_at, partial_fill_index, created_at
		FROM stored_secrets`)
	if err != nil {
		return nil, fmt.Errorf("load stored secrets: %w", err)
	}
	defer rows.Close()

	var out []*types.StoredSecret
	for rows.Next() {
		s := &types.StoredSecret{}
		var hash []byte
		var status string
		var revealAt, revealedAt sql.NullTime
		var partialFillIndex sql.NullInt64
		if err := rows.Scan(
			&s.OrderID, &s.Index, &hash, &s.Ciphertext, &status, &revealAt,
			&revealedAt, &partialFillIndex, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stored secret: %w", err)
		}
		copy(s.Hash[:], hash)
		s.Status = types.SecretStatus(status)
		if revealAt.Valid {
			s.RevealAt = revealAt.Time
		}
		if revealedAt.Valid {
			s.RevealedAt = revealedAt.Time
		}
		if partialFillIndex.Valid {
			idx := int(partialFillIndex.Int64)
			s.PartialFillIndex = &idx
		}
		out = append(out, s)
	}
	return out, nil
}

func nullTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
