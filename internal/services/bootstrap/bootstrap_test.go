package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/citycom/internal/identity"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/session"
)

type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) GetSession(ctx context.Context, token string) (*models.AuthSession, error) {
	args := m.Called(ctx, token)
	if s := args.Get(0); s != nil {
		return s.(*models.AuthSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIdentity) SignOut(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
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

type fakeNotifier struct {
	mu     sync.Mutex
	pushed []string
}

func (f *fakeNotifier) Push(ctx context.Context, userID, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, message)
	return nil
}

type fakeMachine struct{ inProgress bool }

func (f *fakeMachine) InProgress() bool { return f.inProgress }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, ident *mockIdentity, profiles *mockProfiles, machine Machine) (*Service, *session.Store, *fakeNotifier) {
	t.Helper()
	notices := &fakeNotifier{}
	store := session.NewStore(ident, notices, discard(), time.Minute)
	return New(ident, profiles, store, machine, discard()), store, notices
}

func TestRestore_ValidSession(t *testing.T) {
	ident := new(mockIdentity)
	profiles := new(mockProfiles)

	ident.On("GetSession", mock.Anything, "token-1").
		Return(&models.AuthSession{UserID: "user-1", Token: "token-1"}, nil)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1", PlanID: "basic"}, nil)

	svc, store, _ := newService(t, ident, profiles, &fakeMachine{})
	sess, profile, err := svc.Restore(context.Background(), "token-1")

	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, profile)
	assert.Equal(t, "basic", profile.PlanID)

	curSess, curProfile := store.Current()
	assert.Equal(t, "user-1", curSess.UserID)
	assert.Equal(t, "basic", curProfile.PlanID)
}

func TestRestore_NoSessionIsAnonymous(t *testing.T) {
	ident := new(mockIdentity)
	ident.On("GetSession", mock.Anything, "").Return(nil, identity.ErrNoSession)

	svc, store, _ := newService(t, ident, new(mockProfiles), &fakeMachine{})
	sess, profile, err := svc.Restore(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, profile)
	curSess, _ := store.Current()
	assert.Nil(t, curSess)
}

func TestRestore_OrphanedSessionIsHealed(t *testing.T) {
	ident := new(mockIdentity)
	profiles := new(mockProfiles)

	ident.On("GetSession", mock.Anything, "token-1").
		Return(&models.AuthSession{UserID: "ghost", Token: "token-1"}, nil)
	// Профиля в базе нет: сессия осиротела.
	profiles.On("GetProfile", mock.Anything, "ghost").Return(nil, nil)
	ident.On("SignOut", mock.Anything, "token-1").Return(nil)

	svc, store, notices := newService(t, ident, profiles, &fakeMachine{})
	sess, profile, err := svc.Restore(context.Background(), "token-1")

	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, profile)

	curSess, _ := store.Current()
	assert.Nil(t, curSess)
	ident.AssertCalled(t, "SignOut", mock.Anything, "token-1")
	require.NotEmpty(t, notices.pushed)
	assert.Contains(t, notices.pushed[0], "sesión")
}

func TestRestore_ProfileLoadErrorKeepsSession(t *testing.T) {
	ident := new(mockIdentity)
	profiles := new(mockProfiles)

	ident.On("GetSession", mock.Anything, "token-1").
		Return(&models.AuthSession{UserID: "user-1", Token: "token-1"}, nil)
	profiles.On("GetProfile", mock.Anything, "user-1").Return(nil, errors.New("db down"))

	svc, store, _ := newService(t, ident, profiles, &fakeMachine{})
	sess, profile, err := svc.Restore(context.Background(), "token-1")

	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Nil(t, profile)
	curSess, _ := store.Current()
	assert.NotNil(t, curSess)
}

func TestHandleChange_SignInLeadsToDashboard(t *testing.T) {
	profiles := new(mockProfiles)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1", PlanID: "premium"}, nil)

	svc, store, _ := newService(t, new(mockIdentity), profiles, &fakeMachine{})
	route := svc.HandleChange(context.Background(), session.ChangeEvent{
		Kind:    session.SignedIn,
		Session: &models.AuthSession{UserID: "user-1"},
	})

	assert.Equal(t, RouteDashboard, route)
	_, profile := store.Current()
	require.NotNil(t, profile)
	assert.Equal(t, "premium", profile.PlanID)
}

func TestHandleChange_NavigationSuppressedDuringReconciliation(t *testing.T) {
	profiles := new(mockProfiles)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1"}, nil)

	svc, _, _ := newService(t, new(mockIdentity), profiles, &fakeMachine{inProgress: true})
	route := svc.HandleChange(context.Background(), session.ChangeEvent{
		Kind:    session.SignedIn,
		Session: &models.AuthSession{UserID: "user-1"},
	})

	// Профиль перечитан, но редиректа нет: идёт сверка платежа.
	assert.Equal(t, RouteNone, route)
	profiles.AssertExpectations(t)
}

func TestHandleChange_SignOutLeadsToAuth(t *testing.T) {
	svc, _, _ := newService(t, new(mockIdentity), new(mockProfiles), &fakeMachine{})
	route := svc.HandleChange(context.Background(), session.ChangeEvent{Kind: session.SignedOut})
	assert.Equal(t, RouteAuth, route)
}

func TestWatch_DeliversRoutes(t *testing.T) {
	profiles := new(mockProfiles)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1"}, nil)

	svc, store, _ := newService(t, new(mockIdentity), profiles, &fakeMachine{})

	var mu sync.Mutex
	var routes []Route
	unsubscribe := svc.Watch(context.Background(), func(r Route) {
		mu.Lock()
		routes = append(routes, r)
		mu.Unlock()
	})
	defer unsubscribe()

	store.Set(&models.AuthSession{UserID: "user-1"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, routes, 1)
	assert.Equal(t, RouteDashboard, routes[0])
}

func TestWatch_NoRouteDeliveredDuringReconciliation(t *testing.T) {
	profiles := new(mockProfiles)
	profiles.On("GetProfile", mock.Anything, "user-1").
		Return(&models.Profile{ID: "user-1"}, nil)

	svc, store, _ := newService(t, new(mockIdentity), profiles, &fakeMachine{inProgress: true})

	var mu sync.Mutex
	var routes []Route
	unsubscribe := svc.Watch(context.Background(), func(r Route) {
		mu.Lock()
		routes = append(routes, r)
		mu.Unlock()
	})
	defer unsubscribe()

	store.Set(&models.AuthSession{UserID: "user-1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, routes)
}
