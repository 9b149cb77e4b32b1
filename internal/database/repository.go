package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ai-trader-engine/internal/execquality"
	"ai-trader-engine/internal/proposal"
	"ai-trader-engine/internal/strategy"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides data access for the engine's persisted entities
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck verifies database connectivity
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// --- STRATEGIES ---

// SaveStrategy upserts a validated strategy definition. Callers must run the
// validator first; this layer only persists.
func (r *Repository) SaveStrategy(ctx context.Context, def strategy.Definition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO strategies (id, name, goal, definition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			goal = EXCLUDED.goal,
			definition = EXCLUDED.definition,
			updated_at = now()`,
		def.ID, def.Name, def.Goal, payload)
	if err != nil {
		return fmt.Errorf("failed to save strategy: %w", err)
	}
	return nil
}

// GetStrategy loads a strategy definition by id
func (r *Repository) GetStrategy(ctx context.Context, id string) (*strategy.Definition, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT definition FROM strategies WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	var def strategy.Definition
	if err := json.Unmarshal(payload, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
	}
	return &def, nil
}

// ListStrategies returns all saved strategy definitions
func (r *Repository) ListStrategies(ctx context.Context) ([]strategy.Definition, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT definition FROM strategies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var defs []strategy.Definition
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		var def strategy.Definition
		if err := json.Unmarshal(payload, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteStrategy removes a strategy definition
func (r *Repository) DeleteStrategy(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
	}
	return nil
}

// --- PROPOSALS ---

// SaveProposal persists a proposal snapshot so decisions survive restarts
func (r *Repository) SaveProposal(ctx context.Context, p *proposal.Proposal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO proposals (id, symbol, strategy_id, state, budget_required, deadline, payload, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			budget_required = EXCLUDED.budget_required,
			payload = EXCLUDED.payload,
			decided_at = EXCLUDED.decided_at`,
		p.ID, p.Symbol, p.StrategyID, string(p.State), p.BudgetRequired,
		p.Deadline, payload, p.CreatedAt, p.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

// GetProposal loads a persisted proposal by id
func (r *Repository) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT payload FROM proposals WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	var p proposal.Proposal
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return &p, nil
}

// ListProposalsByState returns persisted proposals in the given stored state
func (r *Repository) ListProposalsByState(ctx context.Context, state proposal.State) ([]*proposal.Proposal, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT payload FROM proposals WHERE state = $1 ORDER BY created_at DESC`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []*proposal.Proposal
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		var p proposal.Proposal
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- QUALITY SNAPSHOTS ---

// SaveQualityReport records an execution-quality snapshot for later review
func (r *Repository) SaveQualityReport(ctx context.Context, report *execquality.Report, takenAt time.Time) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal quality report: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO quality_snapshots (position_id, quality_score, entry_slippage, exit_slippage, total_gap, report, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.PositionID, report.QualityScore, report.EntrySlippage,
		report.ExitSlippage, report.Attribution.TotalGap, payload, takenAt)
	if err != nil {
		return fmt.Errorf("failed to save quality report: %w", err)
	}
	return nil
}

// GetQualityHistory returns the stored quality snapshots for a position,
// newest first.
func (r *Repository) GetQualityHistory(ctx context.Context, positionID string, limit int) ([]*execquality.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT report FROM quality_snapshots
		WHERE position_id = $1
		ORDER BY taken_at DESC
		LIMIT $2`, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get quality history: %w", err)
	}
	defer rows.Close()

	var out []*execquality.Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan quality snapshot: %w", err)
		}
		var report execquality.Report
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quality snapshot: %w", err)
		}
		out = append(out, &report)
	}
	return out, rows.Err()
}
