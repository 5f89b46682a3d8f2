package credits

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PayFox/app/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.CreditBalance{}, &models.CreditTransaction{}))
	return NewServiceFromDB(db)
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	svc := newTestService(t)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestConsumeDebitsBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, 100, "seed")
	require.NoError(t, err)

	entry, err := svc.Consume(ctx, 1, 30, "api usage")
	require.NoError(t, err)
	assert.Equal(t, int64(-30), entry.Amount)
	assert.Equal(t, int64(70), entry.BalanceAfter)

	status, err := svc.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(70), status.Balance)
	assert.Equal(t, int64(30), status.TotalConsumed)
}

func TestConsumeRejectsOverdraw(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, 10, "seed")
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 1, 11, "")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestConsumeRejectsNonPositiveAmounts(t *testing.T) {
	svc := newTestService(t)

	for _, amount := range []int64{0, -5} {
		_, err := svc.Consume(context.Background(), 1, amount, "")
		assert.Error(t, err, "amount %d", amount)
	}
}

func TestGetTransactionsPaginatedClampsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, 1, "")
	require.NoError(t, err)

	tests := []struct {
		page, limit int
		wantPage    int
		wantLimit   int
	}{
		{page: 1, limit: 200, wantPage: 1, wantLimit: MaxPageSize},
		{page: 0, limit: 0, wantPage: 1, wantLimit: 20},
		{page: -3, limit: 50, wantPage: 1, wantLimit: 50},
		{page: 2, limit: 100, wantPage: 2, wantLimit: 100},
	}
	for _, tt := range tests {
		result, err := svc.GetTransactionsPaginated(ctx, 1, tt.page, tt.limit, "")
		require.NoError(t, err)
		assert.Equal(t, tt.wantPage, result.Page, "page=%d limit=%d", tt.page, tt.limit)
		assert.Equal(t, tt.wantLimit, result.Limit, "page=%d limit=%d", tt.page, tt.limit)
	}
}

func TestGetTransactionsPaginatedPages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := svc.Adjust(ctx, 1, 1, "")
		require.NoError(t, err)
	}

	first, err := svc.GetTransactionsPaginated(ctx, 1, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(25), first.Total)
	assert.Len(t, first.Transactions, 10)

	third, err := svc.GetTransactionsPaginated(ctx, 1, 3, 10, "")
	require.NoError(t, err)
	assert.Len(t, third.Transactions, 5)

	// Past the end: empty slice, never nil.
	fourth, err := svc.GetTransactionsPaginated(ctx, 1, 4, 10, "")
	require.NoError(t, err)
	require.NotNil(t, fourth.Transactions)
	assert.Empty(t, fourth.Transactions)
}

func TestGetTransactionsPaginatedTypeFilter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, 100, "")
	require.NoError(t, err)
	_, err = svc.Consume(ctx, 1, 10, "")
	require.NoError(t, err)

	result, err := svc.GetTransactionsPaginated(ctx, 1, 1, 10, models.CreditTxConsumption)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, models.CreditTxConsumption, result.Transactions[0].Type)
}
