package payment

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var txColumns = []string{
	"id", "order_id", "patient_id", "appointment_id", "doctor_slot_id",
	"amount", "order_info", "services", "status", "created_at", "updated_at",
}

func txRow(id int64, orderID string, status Status) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(txColumns).
		AddRow(id, orderID, nil, nil, nil, int64(150000), "appointment booking", []byte(nil), status, now, now)
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func TestCreateTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	orderID := NewOrderID()

	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(orderID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			int64(150000), "appointment booking", pgxmock.AnyArg()).
		WillReturnRows(txRow(1, orderID, StatusPending))

	tx, err := repo.CreateTransaction(context.Background(), NewTransaction{
		OrderID:   orderID,
		Amount:    150000,
		OrderInfo: "appointment booking",
	})
	require.NoError(t, err)
	assert.Equal(t, orderID, tx.OrderID)
	assert.Equal(t, StatusPending, tx.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusSettles(t *testing.T) {
	repo, mock := newMockRepo(t)
	orderID := NewOrderID()

	mock.ExpectQuery("UPDATE transactions").
		WithArgs(orderID, StatusSuccess, StatusPending).
		WillReturnRows(txRow(1, orderID, StatusSuccess))

	tx, err := repo.UpdateStatus(context.Background(), orderID, StatusPending, StatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, tx.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusAlreadyTerminal(t *testing.T) {
	repo, mock := newMockRepo(t)
	orderID := NewOrderID()

	// Guarded UPDATE matches nothing, the row is already settled.
	mock.ExpectQuery("UPDATE transactions").
		WithArgs(orderID, StatusCancel, StatusPending).
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery("SELECT").
		WithArgs(orderID).
		WillReturnRows(txRow(1, orderID, StatusSuccess))

	_, err := repo.UpdateStatus(context.Background(), orderID, StatusPending, StatusCancel)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	orderID := NewOrderID()

	mock.ExpectQuery("UPDATE transactions").
		WithArgs(orderID, StatusCancel, StatusPending).
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery("SELECT").
		WithArgs(orderID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateStatus(context.Background(), orderID, StatusPending, StatusCancel)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExpiredPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Now().Add(-10 * time.Minute)
	o1, o2 := NewOrderID(), NewOrderID()

	now := time.Now()
	rows := pgxmock.NewRows(txColumns).
		AddRow(int64(1), o1, nil, nil, nil, int64(100000), "appointment booking", []byte(nil), StatusPending, now, now).
		AddRow(int64(2), o2, nil, nil, nil, int64(200000), "appointment booking", []byte(nil), StatusPending, now, now)

	mock.ExpectQuery("SELECT").
		WithArgs(cutoff).
		WillReturnRows(rows)

	got, err := repo.FindExpiredPending(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, o1, got[0].OrderID)
	assert.Equal(t, o2, got[1].OrderID)
	require.NoError(t, mock.ExpectationsWereMet())
}
