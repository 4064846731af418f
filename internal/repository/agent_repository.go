package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadengage/internal/entities"
)

// AgentRepository mirrors the external identity/presence source. The
// engine only reads availability for the assignment guard; the presence
// source pushes updates through Upsert.
type AgentRepository struct {
	db *pgxpool.Pool
}

func NewAgentRepository(db *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) GetAgent(ctx context.Context, id string) (entities.Agent, error) {
	var agent entities.Agent
	err := r.db.QueryRow(ctx, `
		SELECT id, name, availability, active_conversation_count
		FROM agents WHERE id = $1
	`, id).Scan(&agent.ID, &agent.Name, &agent.Availability, &agent.ActiveConversationCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return entities.Agent{}, fmt.Errorf("agent %s not found", id)
		}
		return entities.Agent{}, err
	}
	return agent, nil
}

func (r *AgentRepository) ListAgents(ctx context.Context) ([]entities.Agent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, availability, active_conversation_count
		FROM agents ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []entities.Agent
	for rows.Next() {
		var agent entities.Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Availability, &agent.ActiveConversationCount); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (r *AgentRepository) UpsertAgent(ctx context.Context, agent entities.Agent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agents (id, name, availability, active_conversation_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			availability = EXCLUDED.availability,
			active_conversation_count = EXCLUDED.active_conversation_count,
			updated_at = NOW()
	`, agent.ID, agent.Name, string(agent.Availability), agent.ActiveConversationCount)
	return err
}
