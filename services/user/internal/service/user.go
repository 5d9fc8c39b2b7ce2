package service

import (
	"context"
	"log/slog"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/identity"
	"github.com/horike37/serverless-application/services/user/internal/repository"
)

var (
	userIDSchema      = validator.Object([]string{"user_id"}, "user_id")
	phoneNumberSchema = validator.Object([]string{"phone_number"}, "phone_number")
	profileInfoSchema = validator.Object([]string{"user_display_name"}, "user_display_name", "self_introduction")
)

// UserService implements account operations outside the login flow.
type UserService struct {
	idp      identity.Store
	profiles repository.ProfileRepository
	events   EventPublisher
	logger   *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(idp identity.Store, profiles repository.ProfileRepository, events EventPublisher, logger *slog.Logger) *UserService {
	return &UserService{
		idp:      idp,
		profiles: profiles,
		events:   events,
		logger:   logger,
	}
}

// Availability is the answer to a native user id check.
type Availability struct {
	UserID    string `json:"user_id"`
	Available bool   `json:"available"`
}

// CheckUserID reports whether a native sign-up may claim userID. Malformed
// ids, reserved names and ids in the Twitter namespace are rejected.
func (s *UserService) CheckUserID(ctx context.Context, userID string) (*Availability, error) {
	if err := validator.ValidateParams(userIDSchema, map[string]any{"user_id": userID}); err != nil {
		return nil, err
	}
	if domain.IsReservedUserID(userID) {
		return nil, apperrors.InvalidInput("user_id is reserved")
	}
	if domain.LooksLikeTwitterUsername(userID) {
		return nil, apperrors.InvalidInput("user_id must not start with " + domain.TwitterUsernamePrefix)
	}

	exists, err := s.idp.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Availability{UserID: userID, Available: !exists}, nil
}

// GetIdentity returns the identity provider account, mapping a missing
// account to RecordNotFound.
func (s *UserService) GetIdentity(ctx context.Context, userID string) (*identity.User, error) {
	u, err := s.idp.GetUser(ctx, userID)
	if identity.IsUserNotFound(err) {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UserInfo is the public view of an account.
type UserInfo struct {
	*domain.PlatformUser
	Status string `json:"status"`
}

// GetUserInfo returns the profile of an account that exists in the
// identity provider.
func (s *UserService) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	if err := validator.ValidateField("user_id", userID); err != nil {
		return nil, err
	}
	u, err := s.GetIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserInfo{PlatformUser: profile, Status: u.Status}, nil
}

// UpdatePhoneNumber sets the phone number attribute. The identity provider
// marks it unverified until the SMS code is confirmed.
func (s *UserService) UpdatePhoneNumber(ctx context.Context, userID, phoneNumber string) error {
	if err := validator.ValidateParams(phoneNumberSchema, map[string]any{"phone_number": phoneNumber}); err != nil {
		return err
	}
	if err := s.idp.UpdateAttribute(ctx, userID, identity.AttrPhoneNumber, phoneNumber); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "phone number updated", slog.String("user_id", userID))
	return nil
}

// ForceUnverifiedPhone clears the phone number so the account has to go
// through phone verification again.
func (s *UserService) ForceUnverifiedPhone(ctx context.Context, userID string) error {
	if err := s.idp.UpdateAttribute(ctx, userID, identity.AttrPhoneNumber, ""); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "phone number cleared", slog.String("user_id", userID))
	return nil
}

// UpdateProfileInput holds the editable profile fields.
type UpdateProfileInput struct {
	DisplayName      string
	SelfIntroduction string
}

// UpdateProfile changes the display name and self introduction.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.PlatformUser, error) {
	params := map[string]any{"user_display_name": in.DisplayName}
	if in.SelfIntroduction != "" {
		params["self_introduction"] = in.SelfIntroduction
	}
	if err := validator.ValidateParams(profileInfoSchema, params); err != nil {
		return nil, err
	}

	user, err := s.profiles.UpdateInfo(ctx, userID, in.DisplayName, in.SelfIntroduction)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishProfileUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.profile.updated event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}
