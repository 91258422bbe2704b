package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advisy/internal/types"
)

func TestUsageRepository_Increment_ReturnsNewTotal(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepository(db)

	var gotArgs []any
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 42
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(row)

	count, err := repo.Increment(context.Background(), "tn_1", types.ResourceSMS, 3)
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	require.Len(t, gotArgs, 3)
	assert.Equal(t, "tn_1", gotArgs[0])
	assert.Equal(t, types.ResourceSMS, gotArgs[1])
	assert.Equal(t, 3, gotArgs[2])
}

func TestUsageRepository_Increment_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepository(db)

	row := &mockRow{scanErr: errors.New("connection refused")}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.Increment(context.Background(), "tn_1", types.ResourceEmails, 1)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUsageRepository_GetCount_MissingRowReadsZero(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepository(db)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 0
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	count, err := repo.GetCount(context.Background(), "tn_1", types.ResourceAIDocuments)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUsageRepository_GetAllCounts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepository(db)

	rows := newMockRows([][]any{
		{types.ResourceSMS, 120},
		{types.ResourceEmails, 45},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	counts, err := repo.GetAllCounts(context.Background(), "tn_1")
	require.NoError(t, err)
	assert.Equal(t, map[types.ResourceType]int{
		types.ResourceSMS:    120,
		types.ResourceEmails: 45,
	}, counts)
}

func TestUsageRepository_DeleteOldPeriods_ReportsCount(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 18"), nil)

	removed, err := repo.DeleteOldPeriods(context.Background(), 12)
	require.NoError(t, err)
	assert.EqualValues(t, 18, removed)
}
