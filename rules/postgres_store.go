package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, version, name, description, status, logic, conditions, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*RuleDefinition, error) {
	var (
		r          RuleDefinition
		status     string
		conditions []byte
	)
	if err := row.Scan(&r.ID, &r.Version, &r.Name, &r.Description, &status, &r.Logic,
		&conditions, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions of rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// Add inserts a new rule version into the database
func (s *PostgresRuleStore) Add(rule *RuleDefinition) error {
	versions, err := s.ListVersions(rule.ID)
	if err != nil && !errors.Is(err, ErrRuleNotFound) {
		return err
	}
	for _, v := range versions {
		if CompareVersions(v.Version, rule.Version) == 0 {
			return fmt.Errorf("%w: %s@%s", ErrRuleExists, rule.ID, rule.Version)
		}
	}
	if n := len(versions); n > 0 && CompareVersions(rule.Version, versions[n-1].Version) < 0 {
		return fmt.Errorf("%w: %s@%s is older than %s", ErrVersionConflict, rule.ID, rule.Version, versions[n-1].Version)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if rule.Status == StatusActive {
		if _, err := tx.Exec(`
			UPDATE rule_definitions SET status = 'inactive', updated_at = $2
			WHERE id = $1 AND status = 'active'
		`, rule.ID, now); err != nil {
			return fmt.Errorf("failed to deactivate previous versions: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO rule_definitions (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rule.ID, rule.Version, rule.Name, rule.Description, string(rule.Status), rule.Logic,
		conditions, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit()
}

// Get retrieves the latest version of a rule
func (s *PostgresRuleStore) Get(id string) (*RuleDefinition, error) {
	versions, err := s.ListVersions(id)
	if err != nil {
		return nil, err
	}
	return versions[len(versions)-1], nil
}

// GetVersion retrieves one version of a rule
func (s *PostgresRuleStore) GetVersion(id, version string) (*RuleDefinition, error) {
	versions, err := s.ListVersions(id)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if CompareVersions(v.Version, version) == 0 {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrRuleNotFound, id, version)
}

// ListVersions returns every version of a rule ordered semantically.
func (s *PostgresRuleStore) ListVersions(id string) ([]*RuleDefinition, error) {
	rows, err := s.db.Query(`SELECT `+ruleColumns+` FROM rule_definitions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule versions: %w", err)
	}
	defer rows.Close()

	versions, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	sortByID(versions)
	return versions, nil
}

// List returns the latest version of every rule
func (s *PostgresRuleStore) List() ([]*RuleDefinition, error) {
	rows, err := s.db.Query(`SELECT ` + ruleColumns + ` FROM rule_definitions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	all, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	sortByID(all)

	latest := make([]*RuleDefinition, 0, len(all))
	for i, r := range all {
		if i+1 < len(all) && all[i+1].ID == r.ID {
			continue
		}
		latest = append(latest, r)
	}
	return latest, nil
}

// ListActive returns all active rule versions
func (s *PostgresRuleStore) ListActive() ([]*RuleDefinition, error) {
	rows, err := s.db.Query(`
		SELECT ` + ruleColumns + `
		FROM rule_definitions
		WHERE status = 'active'
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// SetStatus changes the status of one rule version
func (s *PostgresRuleStore) SetStatus(id, version string, status Status) error {
	current, err := s.GetVersion(id, version)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, status); err != nil {
		return fmt.Errorf("rule %s@%s: %w", id, version, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if status == StatusActive {
		if _, err := tx.Exec(`
			UPDATE rule_definitions SET status = 'inactive', updated_at = $2
			WHERE id = $1 AND status = 'active'
		`, id, now); err != nil {
			return fmt.Errorf("failed to deactivate previous versions: %w", err)
		}
	}

	result, err := tx.Exec(`
		UPDATE rule_definitions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND version = $4
	`, string(status), now, id, current.Version)
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s@%s", ErrRuleNotFound, id, version)
	}

	return tx.Commit()
}

func scanRules(rows *sql.Rows) ([]*RuleDefinition, error) {
	var out []*RuleDefinition
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}
