package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadengage/internal/entities"
)

// HistoryRepository persists the read-only projection of closed
// conversations, keyed by lead.
type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Record(ctx context.Context, entry entities.HistoryEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_history
			(conversation_id, lead_id, channel, operator_id, opened_at, closed_at,
			 disposition_code, disposition_description, call_seconds, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id) DO NOTHING
	`, entry.ConversationID, entry.LeadID, string(entry.Channel), entry.OperatorID,
		entry.OpenedAt, entry.ClosedAt, entry.Disposition.Code, entry.Disposition.Description,
		entry.CallSeconds, entry.Transcript)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ByLead returns all past closed conversations for a lead, oldest first.
func (r *HistoryRepository) ByLead(ctx context.Context, leadID string) ([]entities.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, lead_id, channel, operator_id, opened_at, closed_at,
		       disposition_code, disposition_description, call_seconds, transcript
		FROM conversation_history
		WHERE lead_id = $1
		ORDER BY closed_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []entities.HistoryEntry
	for rows.Next() {
		var e entities.HistoryEntry
		var operatorID, description, transcript *string
		if err := rows.Scan(&e.ConversationID, &e.LeadID, &e.Channel, &operatorID,
			&e.OpenedAt, &e.ClosedAt, &e.Disposition.Code, &description,
			&e.CallSeconds, &transcript); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if operatorID != nil {
			e.OperatorID = *operatorID
		}
		if description != nil {
			e.Disposition.Description = *description
		}
		if transcript != nil {
			e.Transcript = *transcript
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
