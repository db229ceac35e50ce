package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
)

func clusterRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "fingerprint", "headline", "context_summary", "search_text", "categories",
		"importance_score", "score_breakdown", "manual_boost", "first_seen_at", "last_seen_at",
		"last_signal_at", "status",
	})
}

func TestClusterRepo_Lock_NoTxInContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewClusterRepo(db)
	err = repo.Lock(context.Background(), 123)
	assert.Error(t, err)
}

func TestClusterRepo_Lock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(123)).WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := WithTx(context.Background(), tx)

	repo := NewClusterRepo(db)
	err = repo.Lock(ctx, 123)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_FindByFingerprint_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("FROM story_clusters WHERE fingerprint").
		WithArgs("fp-1").
		WillReturnRows(clusterRows())

	repo := NewClusterRepo(db)
	_, err = repo.FindByFingerprint(context.Background(), "fp-1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_FindByFingerprint_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := clusterRows().AddRow(
		int64(5), "fp-1", "Headline", "Summary", "search text", pq.StringArray{"product_launch"},
		int64(42), []byte(`{}`), false, now, now, now, entity.ClusterStatusActive,
	)
	mock.ExpectQuery("FROM story_clusters WHERE fingerprint").
		WithArgs("fp-1").
		WillReturnRows(rows)

	repo := NewClusterRepo(db)
	c, err := repo.FindByFingerprint(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.ID)
	assert.Equal(t, "Headline", c.Headline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_Create_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO story_clusters").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := WithTx(context.Background(), tx)

	repo := NewClusterRepo(db)
	_, err = repo.Create(ctx, &entity.StoryCluster{
		Fingerprint: "fp-1",
		Categories:  []entity.Category{entity.CategoryProductLaunch},
	}, nil)
	assert.ErrorIs(t, err, entity.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_Create_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO story_clusters").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery("SELECT id FROM platforms WHERE slug").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO cluster_platforms").
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := WithTx(context.Background(), tx)

	repo := NewClusterRepo(db)
	now := time.Now()
	id, err := repo.Create(ctx, &entity.StoryCluster{
		Fingerprint:  "fp-1",
		Headline:     "Headline",
		Categories:   []entity.Category{entity.CategoryProductLaunch},
		FirstSeenAt:  now,
		LastSeenAt:   now,
		LastSignalAt: now,
		Status:       entity.ClusterStatusActive,
	}, []string{"character-ai"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_Attach_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE story_clusters SET last_signal_at").
		WithArgs(sqlmock.AnyArg(), int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewClusterRepo(db)
	err = repo.Attach(context.Background(), 404, time.Now())
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_SweepStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE story_clusters SET status").
		WithArgs(entity.ClusterStatusStale, entity.ClusterStatusActive, 3).
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := NewClusterRepo(db)
	n, err := repo.SweepStale(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClusterRepo_Feed_WithCursorAndFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := clusterRows().AddRow(
		int64(1), "fp-1", "Headline", "Summary", "search text", pq.StringArray{"product_launch"},
		int64(90), []byte(`{}`), false, now, now, now, entity.ClusterStatusActive,
	)
	mock.ExpectQuery("FROM story_clusters").WillReturnRows(rows)
	mock.ExpectQuery("SELECT p.slug FROM platforms").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"slug"}).AddRow("character-ai"))

	category := entity.CategoryProductLaunch
	platform := "character-ai"
	repo := NewClusterRepo(db)
	results, err := repo.Feed(context.Background(), repository.FeedFilter{
		Category:     &category,
		PlatformSlug: &platform,
		Since:        now.Add(-24 * time.Hour),
		Cursor:       &repository.FeedCursor{ImportanceScore: 100, LastSignalAt: now, ID: 2},
		Limit:        20,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"character-ai"}, results[0].Platforms)
	assert.NoError(t, mock.ExpectationsWereMet())
}
