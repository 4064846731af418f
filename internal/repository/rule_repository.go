package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadengage/internal/entities"
)

// RuleRepository reads the disposition rule configuration. Rules are
// human-edited through the admin surface; the engine only ever asks for
// an ordered list by type.
type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

// RulesByType returns the rules for one mode in evaluation order.
func (r *RuleRepository) RulesByType(ctx context.Context, t entities.RuleType) ([]entities.RegistryRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code, description, rule_type, predicate
		FROM registry_rules
		WHERE rule_type = $1
		ORDER BY position ASC, id ASC
	`, string(t))
	if err != nil {
		return nil, fmt.Errorf("query registry rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRules returns every configured rule in evaluation order.
func (r *RuleRepository) ListRules(ctx context.Context) ([]entities.RegistryRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code, description, rule_type, predicate
		FROM registry_rules
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query registry rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]entities.RegistryRule, error) {
	var rules []entities.RegistryRule
	for rows.Next() {
		var rule entities.RegistryRule
		var predicate []byte
		if err := rows.Scan(&rule.Code, &rule.Description, &rule.Type, &predicate); err != nil {
			return nil, fmt.Errorf("scan registry rule: %w", err)
		}
		if err := json.Unmarshal(predicate, &rule.Predicate); err != nil {
			return nil, fmt.Errorf("invalid predicate json for rule %s: %w", rule.Code, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpsertRule writes one rule at the given evaluation position.
func (r *RuleRepository) UpsertRule(ctx context.Context, rule entities.RegistryRule, position int) error {
	predicate, err := json.Marshal(rule.Predicate)
	if err != nil {
		return fmt.Errorf("marshal predicate: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO registry_rules (code, description, rule_type, predicate, position, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			rule_type = EXCLUDED.rule_type,
			predicate = EXCLUDED.predicate,
			position = EXCLUDED.position,
			updated_at = NOW()
	`, rule.Code, rule.Description, string(rule.Type), predicate, position)
	return err
}

func (r *RuleRepository) DeleteRule(ctx context.Context, code string) error {
	_, err := r.db.Exec(ctx, "DELETE FROM registry_rules WHERE code = $1", code)
	return err
}
