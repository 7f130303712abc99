package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/services/verification"
)

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) VerifyPayment(ctx context.Context, transactionID string) error {
	args := m.Called(ctx, transactionID)
	return args.Error(0)
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*models.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeSessions struct {
	mu      sync.Mutex
	session *models.AuthSession
	profile *models.Profile
	applied []*models.Profile
}

func (f *fakeSessions) Current() (*models.AuthSession, *models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.profile
}

func (f *fakeSessions) SetProfile(profile *models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
	f.applied = append(f.applied, profile)
}

type fakeNotifier struct {
	mu      sync.Mutex
	pushed  []string
	kinds   []string
	userIDs []string
	err     error
}

func (f *fakeNotifier) Push(ctx context.Context, userID, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userIDs = append(f.userIDs, userID)
	f.kinds = append(f.kinds, kind)
	f.pushed = append(f.pushed, message)
	return f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedEvent() models.PaymentReturnEvent {
	return models.PaymentReturnEvent{
		TransactionID: "12345",
		Status:        models.StatusApproved,
		RawReference:  `{"userId":"user-1","planId":"premium"}`,
		Reference:     &models.PaymentReference{UserID: "user-1", PlanID: "premium"},
	}
}

func TestReconcile_ApprovedActivatesAndRefreshesProfile(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}
	notices := &fakeNotifier{}

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1", PlanID: "premium"}, nil)

	m := New(verifier, profiles, sessions, notices, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	assert.Equal(t, models.OutcomeActivated, outcome.Result)
	assert.Equal(t, "premium", outcome.TargetPlanID)
	assert.Equal(t, "12345", outcome.TransactionID)
	require.Len(t, sessions.applied, 1)
	assert.Equal(t, "premium", sessions.applied[0].PlanID)
	require.Len(t, notices.kinds, 1)
	assert.Equal(t, "success", notices.kinds[0])
	assert.False(t, m.InProgress())
	verifier.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestReconcile_RejectedSkipsVerification(t *testing.T) {
	verifier := new(mockVerifier)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}
	notices := &fakeNotifier{}

	m := New(verifier, new(mockProfiles), sessions, notices, discard())
	outcome := m.Reconcile(context.Background(), models.PaymentReturnEvent{
		TransactionID: "12345",
		Status:        models.StatusRejected,
	})

	assert.Equal(t, models.OutcomeRejected, outcome.Result)
	verifier.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
	require.Len(t, notices.kinds, 1)
	assert.Equal(t, "error", notices.kinds[0])
}

func TestReconcile_PendingDoesNotTouchPlan(t *testing.T) {
	verifier := new(mockVerifier)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}

	m := New(verifier, new(mockProfiles), sessions, &fakeNotifier{}, discard())
	outcome := m.Reconcile(context.Background(), models.PaymentReturnEvent{
		TransactionID: "12345",
		Status:        models.StatusPending,
	})

	assert.Equal(t, models.OutcomePending, outcome.Result)
	assert.Empty(t, sessions.applied)
	verifier.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
}

func TestReconcile_UnknownStatusIsError(t *testing.T) {
	m := New(new(mockVerifier), new(mockProfiles),
		&fakeSessions{session: &models.AuthSession{UserID: "user-1"}}, &fakeNotifier{}, discard())

	outcome := m.Reconcile(context.Background(), models.PaymentReturnEvent{
		TransactionID: "12345",
		Status:        models.StatusUnknown,
	})

	assert.Equal(t, models.OutcomeError, outcome.Result)
	assert.Contains(t, outcome.Message, "12345")
}

func TestReconcile_MalformedReferenceIsErrorWithTransactionID(t *testing.T) {
	verifier := new(mockVerifier)
	m := New(verifier, new(mockProfiles),
		&fakeSessions{session: &models.AuthSession{UserID: "user-1"}}, &fakeNotifier{}, discard())

	outcome := m.Reconcile(context.Background(), models.PaymentReturnEvent{
		TransactionID: "12345",
		Status:        models.StatusApproved,
		RawReference:  "not-json",
		Reference:     nil,
	})

	assert.Equal(t, models.OutcomeError, outcome.Result)
	assert.Contains(t, outcome.Message, "12345")
	verifier.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
}

func TestReconcile_ApprovedWithoutTransactionID(t *testing.T) {
	m := New(new(mockVerifier), new(mockProfiles),
		&fakeSessions{session: &models.AuthSession{UserID: "user-1"}}, &fakeNotifier{}, discard())

	outcome := m.Reconcile(context.Background(), models.PaymentReturnEvent{
		Status: models.StatusApproved,
	})

	assert.Equal(t, models.OutcomeError, outcome.Result)
}

func TestReconcile_VerificationNetworkErrorKeepsPlanUntouched(t *testing.T) {
	verifier := new(mockVerifier)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}
	notices := &fakeNotifier{}

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(errors.New("connection refused"))

	m := New(verifier, new(mockProfiles), sessions, notices, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	assert.Equal(t, models.OutcomeError, outcome.Result)
	assert.Contains(t, outcome.Message, "12345")
	assert.Empty(t, sessions.applied)
	assert.False(t, m.InProgress())
}

func TestReconcile_ProviderDidNotConfirm(t *testing.T) {
	verifier := new(mockVerifier)
	verifier.On("VerifyPayment", mock.Anything, "12345").Return(verification.ErrNotApproved)

	m := New(verifier, new(mockProfiles),
		&fakeSessions{session: &models.AuthSession{UserID: "user-1"}}, &fakeNotifier{}, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	assert.Equal(t, models.OutcomeError, outcome.Result)
	assert.Contains(t, outcome.Message, "No se realizaron cambios")
}

func TestReconcile_ProfileRefreshFailureDoesNotBlockOutcome(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil)
	profiles.On("GetProfile", mock.Anything, "user-1").Return(nil, errors.New("db down"))

	m := New(verifier, profiles, sessions, &fakeNotifier{}, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	// Сверка удалась, перечитывание профиля нет: итог всё равно activated.
	assert.Equal(t, models.OutcomeActivated, outcome.Result)
	assert.Empty(t, sessions.applied)
}

func TestReconcile_NoSessionFallsBackToReferenceUser(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	sessions := &fakeSessions{}
	notices := &fakeNotifier{}

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1", PlanID: "premium"}, nil)

	m := New(verifier, profiles, sessions, notices, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	// Итог без сессии всё равно доезжает до пользователя из метаданных.
	assert.Equal(t, models.OutcomeActivated, outcome.Result)
	require.Len(t, notices.userIDs, 1)
	assert.Equal(t, "user-1", notices.userIDs[0])
	profiles.AssertExpectations(t)
}

func TestReconcile_NoticeAddressedToPaymentUserNotSessionUser(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	// В хранилище сессии процесса сейчас другой пользователь: редирект
	// провайдера приходит без авторизации, адресат берётся из платежа.
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-2"}}
	notices := &fakeNotifier{}

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil)
	profiles.On("GetProfile", mock.Anything, "user-2").
		Return(&models.Profile{ID: "user-2", PlanID: "free"}, nil)

	m := New(verifier, profiles, sessions, notices, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	assert.Equal(t, models.OutcomeActivated, outcome.Result)
	require.Len(t, notices.userIDs, 1)
	assert.Equal(t, "user-1", notices.userIDs[0])
}

func TestReconcile_SessionChangedDuringVerification(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}

	// К моменту перечитывания профиля в сессии уже другой пользователь.
	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil).Run(func(mock.Arguments) {
		sessions.mu.Lock()
		sessions.session = &models.AuthSession{UserID: "user-2"}
		sessions.mu.Unlock()
	})
	profiles.On("GetProfile", mock.Anything, "user-2").
		Return(&models.Profile{ID: "user-1", PlanID: "premium"}, nil)

	m := New(verifier, profiles, sessions, &fakeNotifier{}, discard())
	outcome := m.Reconcile(context.Background(), approvedEvent())

	assert.Equal(t, models.OutcomeActivated, outcome.Result)
	assert.Empty(t, sessions.applied)
}

func TestReconcile_InProgressDuringVerification(t *testing.T) {
	verifier := new(mockVerifier)
	profiles := new(mockProfiles)
	sessions := &fakeSessions{session: &models.AuthSession{UserID: "user-1"}}

	m := New(verifier, profiles, sessions, &fakeNotifier{}, discard())

	verifier.On("VerifyPayment", mock.Anything, "12345").Return(nil).Run(func(mock.Arguments) {
		assert.True(t, m.InProgress())
	})
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1", PlanID: "premium"}, nil)

	m.Reconcile(context.Background(), approvedEvent())
	assert.False(t, m.InProgress())
}
