package claims

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAddNote_ReturnsPersistedNote(t *testing.T) {
	store, mock := newMockStore(t)
	claimID := uuid.New()
	authorID := uuid.New()
	noteID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO claim_notes").
		WithArgs(claimID, authorID, "called the airline", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(noteID, now))

	note, err := store.AddNote(context.Background(), claimID, authorID, "called the airline", true)
	require.NoError(t, err)
	require.Equal(t, noteID, note.ID)
	require.True(t, note.Internal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotes_CustomerViewerExcludesInternalNotes(t *testing.T) {
	store, mock := newMockStore(t)
	claimID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM claim_notes WHERE claim_id = \\$1 AND internal = false ORDER BY created_at ASC").
		WithArgs(claimID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claim_id", "author_id", "body", "internal", "created_at"}).
			AddRow(uuid.New(), claimID, uuid.New(), "visible note", false, time.Now()))

	notes, err := store.ListNotes(context.Background(), claimID, false)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.False(t, notes[0].Internal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotes_StaffViewerIncludesInternalNotes(t *testing.T) {
	store, mock := newMockStore(t)
	claimID := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM claim_notes WHERE claim_id = \\$1 ORDER BY created_at ASC").
		WithArgs(claimID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claim_id", "author_id", "body", "internal", "created_at"}).
			AddRow(uuid.New(), claimID, uuid.New(), "internal note", true, time.Now()))

	notes, err := store.ListNotes(context.Background(), claimID, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.True(t, notes[0].Internal)
	require.NoError(t, mock.ExpectationsWereMet())
}
