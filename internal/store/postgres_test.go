package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStoreWithDB(sqlx.NewDb(db, "postgres"), time.Second)
	t.Cleanup(func() { store.Close() })
	return store, mock
}

func TestPostgresSaveSignal(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()
	sig := testSignal("p1", baseTime, models.DirectionBuy, models.QualityGood)

	insert := regexp.QuoteMeta("INSERT INTO signals")
	mock.ExpectExec(insert).
		WithArgs("p1", "NIFTY", sqlmock.AnyArg(), "BUY", 72.5, "GOOD", "REAL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs("p1", "NIFTY", sqlmock.AnyArg(), "BUY", 72.5, "GOOD", "REAL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.SaveSignal(ctx, sig))
	err := store.SaveSignal(ctx, sig)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateSignal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSignals(t *testing.T) {
	store, mock := newMockPostgres(t)
	sig := testSignal("p2", baseTime, models.DirectionSell, models.QualityExcellent)
	payload, err := json.Marshal(sig)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM signals WHERE 1=1 AND symbol = $1 AND quality = $2 ORDER BY generated_at DESC, id LIMIT $3")).
		WithArgs("NIFTY", "EXCELLENT", 5).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.GetSignals(context.Background(), SignalFilter{Symbol: "NIFTY", Quality: models.QualityExcellent, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID)
	assert.Equal(t, models.DirectionSell, got[0].Direction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSignalMissing(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM signals WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := store.GetSignal(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperrors.ErrDataNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS signals")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
