package repository

import (
	"encoding/json"
	"fmt"

	"lumir-wiki/internal/domain"

	"github.com/lib/pq"
)

// nullableTextArray keeps the tri-state of id sets across the DB
// boundary: nil stays SQL NULL (unclassified), empty and non-empty
// slices become text[] values.
func nullableTextArray(v []string) any {
	if v == nil {
		return nil
	}
	return pq.Array(v)
}

// attachmentsValue encodes attachments for the JSONB column; nil/empty
// stores NULL.
func attachmentsValue(atts []domain.Attachment) (any, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(atts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	return raw, nil
}
