package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryRower is the slice of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool queryRower
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, conversation_id, name, email, phone, location, guest_count, budget, season, temperature, summary, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.ConversationID,
		req.Name,
		req.Email,
		req.Phone,
		req.Location,
		req.GuestCount,
		req.Budget,
		req.Season,
		req.Temperature,
		req.Summary,
		req.Source,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:             id.String(),
		ConversationID: req.ConversationID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Location:       req.Location,
		GuestCount:     req.GuestCount,
		Budget:         req.Budget,
		Season:         req.Season,
		Temperature:    req.Temperature,
		Summary:        req.Summary,
		Source:         req.Source,
		CreatedAt:      createdAt,
	}, nil
}

// GetByConversationID fetches the most recent lead for a conversation.
func (r *PostgresRepository) GetByConversationID(ctx context.Context, conversationID string) (*Lead, error) {
	query := `
		SELECT id, conversation_id, name, email, phone, location, guest_count, budget, season, temperature, summary, source, created_at
		FROM leads
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.pool.QueryRow(ctx, query, conversationID)
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.ConversationID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Location,
		&lead.GuestCount,
		&lead.Budget,
		&lead.Season,
		&lead.Temperature,
		&lead.Summary,
		&lead.Source,
		&lead.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}
