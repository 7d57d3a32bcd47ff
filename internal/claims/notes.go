package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Note is a remark attached to a claim by a customer or an agent. Internal
// notes carry agent-only context (investigation status, fraud signals)
// that a customer viewer must never see.
type Note struct {
	ID        uuid.UUID
	ClaimID   uuid.UUID
	AuthorID  uuid.UUID
	Body      string
	Internal  bool
	CreatedAt time.Time
}

type noteRow struct {
	ID        uuid.UUID `db:"id"`
	ClaimID   uuid.UUID `db:"claim_id"`
	AuthorID  uuid.UUID `db:"author_id"`
	Body      string    `db:"body"`
	Internal  bool      `db:"internal"`
	CreatedAt time.Time `db:"created_at"`
}

func (r noteRow) toNote() Note {
	return Note{
		ID:        r.ID,
		ClaimID:   r.ClaimID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		Internal:  r.Internal,
		CreatedAt: r.CreatedAt,
	}
}

// AddNote records a note against a claim. internal notes are visible only
// to agents and admins; ListNotes filters them out for customer viewers.
func (s *Store) AddNote(ctx context.Context, claimID, authorID uuid.UUID, body string, internal bool) (Note, error) {
	const query = `
		INSERT INTO claim_notes (claim_id, author_id, body, internal)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	row := s.Querier(ctx).QueryRowxContext(ctx, query, claimID, authorID, body, internal)
	var id uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&id, &createdAt); err != nil {
		return Note{}, fmt.Errorf("claims: insert note: %w", err)
	}
	return Note{
		ID:        id,
		ClaimID:   claimID,
		AuthorID:  authorID,
		Body:      body,
		Internal:  internal,
		CreatedAt: createdAt,
	}, nil
}

// ListNotes returns claimID's notes oldest-first. A customer viewer never
// sees internal notes; agents and admins see everything.
func (s *Store) ListNotes(ctx context.Context, claimID uuid.UUID, viewerIsStaff bool) ([]Note, error) {
	query := `SELECT * FROM claim_notes WHERE claim_id = $1`
	if !viewerIsStaff {
		query += ` AND internal = false`
	}
	query += ` ORDER BY created_at ASC`

	var rows []noteRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, claimID); err != nil {
		return nil, fmt.Errorf("claims: list notes: %w", err)
	}
	out := make([]Note, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNote())
	}
	return out, nil
}
