package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdatum/lca-review-api/internal/models"
)

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "version", "type", "name", "body", "state_code", "created_at"})
}

func TestFetchDocument(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	version := models.MustParseVersion("01.00.000")
	mock.ExpectQuery("SELECT id, version, type, name, body, state_code, created_at").
		WithArgs("flow-1", version, models.TypeFlow).
		WillReturnRows(documentRows().
			AddRow("flow-1", "01.00.000", "FLOW", "Carbon dioxide", []byte(`{}`), models.StatePublished, time.Now()))

	doc, err := repo.FetchDocument(context.Background(), "flow-1", version, models.TypeFlow)
	require.NoError(t, err)
	assert.Equal(t, "Carbon dioxide", doc.Name)
	assert.Equal(t, version, doc.Version)
}

func TestFetchDocumentMissingIsErrNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	version := models.MustParseVersion("01.00.000")
	mock.ExpectQuery("SELECT id, version, type, name, body, state_code, created_at").
		WithArgs("flow-gone", version, models.TypeFlow).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FetchDocument(context.Background(), "flow-gone", version, models.TypeFlow)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFetchLatestPublished(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery("SELECT id, version, type, name, body, state_code, created_at").
		WithArgs("unit-kg", models.TypeUnit, models.StatePublished).
		WillReturnRows(documentRows().
			AddRow("unit-kg", "02.00.000", "UNIT", "kg", []byte(`{}`), models.StatePublished, time.Now()))

	doc, err := repo.FetchLatestPublished(context.Background(), "unit-kg", models.TypeUnit)
	require.NoError(t, err)
	assert.Equal(t, "02.00.000", doc.Version.String())
}

func TestListVersions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery("SELECT id, version, type, name, body, state_code, created_at").
		WithArgs("ds-1").
		WillReturnRows(documentRows().
			AddRow("ds-1", "01.01.000", "PROCESS", "Steel production", []byte(`{}`), models.StateDraft, time.Now()).
			AddRow("ds-1", "01.00.000", "PROCESS", "Steel production", []byte(`{}`), models.StatePublished, time.Now()))

	docs, err := repo.ListVersions(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "01.01.000", docs[0].Version.String())
}

func TestCreateDraftForcesDraftState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		ID:        "ds-1",
		Version:   models.MustParseVersion("01.02.000"),
		Type:      models.TypeProcess,
		Name:      "Steel production",
		StateCode: models.StatePublished, // must be overridden
	}
	require.NoError(t, repo.CreateDraft(context.Background(), doc))
	assert.Equal(t, models.StateDraft, doc.StateCode)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestSetStateCodeGuardsTerminalDocuments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	version := models.MustParseVersion("01.00.000")
	mock.ExpectExec("UPDATE documents SET state_code").
		WithArgs(models.StateAssigned, "ds-1", version, models.StatePublished, models.StateRejected).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStateCode(context.Background(), "ds-1", version, models.StateAssigned)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
