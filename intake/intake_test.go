package intake

import (
	"context"
	"testing"
	"time"

	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/pkg/database"
	"github.com/phbpx/mystic-services/pkg/mq"
	"github.com/phbpx/mystic-services/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Service, *sqlstore.Store) {
	t.Helper()

	db, err := database.Open(database.Config{Driver: database.SQLite, Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	store := sqlstore.New(db)
	return NewService(store, store, mq.Discard{}, otelzap.New(zap.NewNop()).Sugar()), store
}

func record(t *testing.T, store *sqlstore.Store, id string, status mystic.PaymentStatus) {
	t.Helper()
	require.NoError(t, store.RecordOutcome(context.Background(), mystic.CheckoutSession{
		SessionID:   id,
		ServiceType: "amor",
		ServiceName: "Ritual de Amor",
		Status:      status,
		AmountTotal: 29700,
		Currency:    "brl",
		ResolvedAt:  time.Now().UTC(),
	}))
}

var fields = mystic.IntakeFields{
	FullName:    "Ana Souza",
	BirthDate:   "1990-03-14",
	Phone:       "+55 11 99999-0000",
	BelovedName: "Bruno",
	Situation:   "we drifted apart",
}

func TestSubmit_RequiresCompletedPayment(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "cs_unknown", "amor", fields)
	assert.ErrorIs(t, err, mystic.ErrNotPaid)

	record(t, store, "cs_expired", mystic.PaymentExpired)
	_, err = svc.Submit(ctx, "cs_expired", "amor", fields)
	assert.ErrorIs(t, err, mystic.ErrNotPaid)

	intakes, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, intakes)
}

func TestSubmit(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	record(t, store, "cs_paid", mystic.PaymentPaid)

	in, err := svc.Submit(ctx, "cs_paid", "amor", fields)
	require.NoError(t, err)
	assert.Equal(t, "cs_paid", in.SessionID)
	assert.Equal(t, "amor", in.ServiceType)
	assert.Equal(t, "Bruno", in.BelovedName)

	assert.Equal(t, mystic.IntakePending, in.Status)

	intakes, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, intakes, 1)
	assert.Equal(t, in.ID, intakes[0].ID)
	require.NotNil(t, intakes[0].Payment)
	assert.Equal(t, "Ritual de Amor", intakes[0].Payment.ServiceName)
	assert.Equal(t, int64(29700), intakes[0].Payment.AmountTotal)
}

func TestUpdateStatus(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	record(t, store, "cs_paid", mystic.PaymentPaid)

	in, err := svc.Submit(ctx, "cs_paid", "amor", fields)
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, in.ID, mystic.IntakeDone)
	require.NoError(t, err)
	assert.Equal(t, mystic.IntakeDone, got.Status)

	// Staff may reopen finished work.
	got, err = svc.UpdateStatus(ctx, in.ID, mystic.IntakeInProgress)
	require.NoError(t, err)
	assert.Equal(t, mystic.IntakeInProgress, got.Status)

	_, err = svc.UpdateStatus(ctx, in.ID, "archived")
	assert.ErrorIs(t, err, mystic.ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, "not-a-uuid", mystic.IntakeDone)
	assert.ErrorIs(t, err, mystic.ErrIntakeNotFound)
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	record(t, store, "cs_paid", mystic.PaymentPaid)

	_, err := svc.Submit(ctx, "cs_paid", "amor", fields)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "cs_paid", "amor", fields)
	assert.ErrorIs(t, err, mystic.ErrIntakeExists)
}

func TestSubmit_MissingFields(t *testing.T) {
	svc, store := setup(t)
	record(t, store, "cs_paid", mystic.PaymentPaid)

	_, err := svc.Submit(context.Background(), "cs_paid", "amor", mystic.IntakeFields{FullName: "Ana", Phone: " "})
	ve, ok := mystic.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"birth_date", "phone", "situation"}, ve.Fields)
}

func TestSubmit_BelovedNameOptional(t *testing.T) {
	svc, store := setup(t)
	record(t, store, "cs_paid", mystic.PaymentPaid)

	f := fields
	f.BelovedName = ""
	_, err := svc.Submit(context.Background(), "cs_paid", "amor", f)
	assert.NoError(t, err)
}

func TestSubmit_ServiceTypeMismatch(t *testing.T) {
	svc, store := setup(t)
	record(t, store, "cs_paid", mystic.PaymentPaid)

	_, err := svc.Submit(context.Background(), "cs_paid", "prosperidade", fields)
	ve, ok := mystic.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"service_type"}, ve.Fields)
}

func TestSubmit_ServiceTypeFromSession(t *testing.T) {
	svc, store := setup(t)
	record(t, store, "cs_paid", mystic.PaymentPaid)

	in, err := svc.Submit(context.Background(), "cs_paid", "", fields)
	require.NoError(t, err)
	assert.Equal(t, "amor", in.ServiceType)
}

func TestSubmit_EmptySession(t *testing.T) {
	svc, _ := setup(t)

	_, err := svc.Submit(context.Background(), "", "amor", fields)
	_, ok := mystic.IsValidation(err)
	assert.True(t, ok)
}
