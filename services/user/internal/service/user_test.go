package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/identity"
)

type userFixture struct {
	idp      *identity.Memory
	profiles *memProfiles
	events   *mockEvents
	svc      *UserService
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{
		idp:      identity.NewMemory(),
		profiles: newMemProfiles(),
		events:   &mockEvents{},
	}
	f.svc = NewUserService(f.idp, f.profiles, f.events, newTestLogger())
	return f
}

func (f *userFixture) addUser(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.idp.CreateUser(ctx, identity.CreateUserInput{UserID: userID, TemporaryPassword: "tmp"}))
	require.NoError(t, f.profiles.Create(ctx, &domain.PlatformUser{UserID: userID, DisplayName: userID}))
}

func TestCheckUserID(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "taken-id")

	tests := []struct {
		name      string
		userID    string
		available bool
		wantErr   error
		invalid   bool
	}{
		{name: "free id", userID: "abc-123", available: true},
		{name: "taken id", userID: "taken-id", available: false},
		{name: "too short", userID: "ab", invalid: true},
		{name: "double hyphen", userID: "a--b", invalid: true},
		{name: "leading hyphen", userID: "-abc", invalid: true},
		{name: "trailing hyphen", userID: "abc-", invalid: true},
		{name: "reserved", userID: "admin", wantErr: apperrors.ErrInvalidInput},
		{name: "reserved any case", userID: "Login", wantErr: apperrors.ErrInvalidInput},
		{name: "twitter namespace", userID: "Twitter-1234", wantErr: apperrors.ErrInvalidInput},
		{name: "twitter namespace lower case", userID: "twitter-abc", wantErr: apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.CheckUserID(context.Background(), tt.userID)
			switch {
			case tt.invalid:
				var verr *validator.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, verr.FieldNames(), "user_id")
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.userID, got.UserID)
				assert.Equal(t, tt.available, got.Available)
			}
		})
	}
}

func TestGetUserInfo(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")

	info, err := f.svc.GetUserInfo(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID)
	assert.Equal(t, "FORCE_CHANGE_PASSWORD", info.Status)
}

func TestGetUserInfo_NotFound(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.GetUserInfo(context.Background(), "nobody")

	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdatePhoneNumber(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")
	ctx := context.Background()

	require.NoError(t, f.svc.UpdatePhoneNumber(ctx, "alice", "+819012345678"))

	u, err := f.idp.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "+819012345678", u.Attribute(identity.AttrPhoneNumber))
}

func TestUpdatePhoneNumber_Rejected(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")

	for _, number := range []string{"+815012345678", "09012345678", "+8190123456789", ""} {
		t.Run(number, func(t *testing.T) {
			err := f.svc.UpdatePhoneNumber(context.Background(), "alice", number)
			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestUpdatePhoneNumber_UnknownUser(t *testing.T) {
	f := newUserFixture(t)

	err := f.svc.UpdatePhoneNumber(context.Background(), "ghost", "+819012345678")

	assert.True(t, identity.IsUserNotFound(err))
}

func TestForceUnverifiedPhone(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")
	ctx := context.Background()
	require.NoError(t, f.svc.UpdatePhoneNumber(ctx, "alice", "+819012345678"))

	require.NoError(t, f.svc.ForceUnverifiedPhone(ctx, "alice"))

	u, err := f.idp.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, u.Attribute(identity.AttrPhoneNumber))
}

func TestUpdateProfile(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")
	f.events.On("PublishProfileUpdated", mock.Anything,
		mock.MatchedBy(func(u *domain.PlatformUser) bool { return u.DisplayName == "Alice" })).Return(nil)

	user, err := f.svc.UpdateProfile(context.Background(), "alice", UpdateProfileInput{
		DisplayName:      "Alice",
		SelfIntroduction: "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, "hello", user.SelfIntroduction)
	assert.True(t, user.SyncIndex)
	f.events.AssertExpectations(t)
}

func TestUpdateProfile_PublishFailureIsLogged(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")
	f.events.On("PublishProfileUpdated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	user, err := f.svc.UpdateProfile(context.Background(), "alice", UpdateProfileInput{DisplayName: "Alice"})

	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
}

func TestUpdateProfile_Validation(t *testing.T) {
	f := newUserFixture(t)
	f.addUser(t, "alice")

	tests := []struct {
		name  string
		in    UpdateProfileInput
		field string
	}{
		{name: "empty name", in: UpdateProfileInput{}, field: "user_display_name"},
		{name: "long name", in: UpdateProfileInput{DisplayName: "0123456789012345678901234567890"}, field: "user_display_name"},
		{name: "long introduction", in: UpdateProfileInput{DisplayName: "ok", SelfIntroduction: strings.Repeat("あ", 101)}, field: "self_introduction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateProfile(context.Background(), "alice", tt.in)
			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.FieldNames(), tt.field)
		})
	}
	f.events.AssertNotCalled(t, "PublishProfileUpdated", mock.Anything, mock.Anything)
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.UpdateProfile(context.Background(), "ghost", UpdateProfileInput{DisplayName: "Ghost"})

	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
