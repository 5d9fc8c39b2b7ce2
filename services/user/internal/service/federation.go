package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/logger"
	"github.com/horike37/serverless-application/services/user/internal/domain"
	"github.com/horike37/serverless-application/services/user/internal/identity"
	"github.com/horike37/serverless-application/services/user/internal/provider"
	"github.com/horike37/serverless-application/services/user/internal/repository"
	"github.com/horike37/serverless-application/services/user/internal/secret"
)

// SecretSealer seals federated credential secrets for storage.
// *secret.Sealer satisfies it.
type SecretSealer interface {
	Seal(userID, plaintext string) (string, error)
	Open(userID, sealed string) (string, error)
}

// EventPublisher publishes profile events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishProfileCreated(ctx context.Context, user *domain.PlatformUser, p domain.Provider) error
	PublishProfileUpdated(ctx context.Context, user *domain.PlatformUser) error
}

// FederationService turns a social login into a platform account session.
//
// A login attempt runs: resolve the external identity, derive the
// candidate user id, log in if the identity provider already knows it,
// otherwise follow an alias if one exists, otherwise provision the account
// and persist its profile and credential with conditional creates.
//
// Nothing is compensated: if provisioning fails after the identity
// provider account was created, that account is left behind and logged.
type FederationService struct {
	idp         identity.Store
	profiles    repository.ProfileRepository
	credentials repository.CredentialRepository
	aliases     repository.AliasRepository
	sealer      SecretSealer
	events      EventPublisher
	resolvers   map[domain.Provider]provider.Resolver
	newPassword func() (string, error)
	logger      *slog.Logger
}

// NewFederationService creates a FederationService for the given resolvers.
func NewFederationService(
	idp identity.Store,
	profiles repository.ProfileRepository,
	credentials repository.CredentialRepository,
	aliases repository.AliasRepository,
	sealer SecretSealer,
	events EventPublisher,
	logger *slog.Logger,
	resolvers ...provider.Resolver,
) *FederationService {
	byProvider := make(map[domain.Provider]provider.Resolver, len(resolvers))
	for _, r := range resolvers {
		byProvider[r.Provider()] = r
	}
	return &FederationService{
		idp:         idp,
		profiles:    profiles,
		credentials: credentials,
		aliases:     aliases,
		sealer:      sealer,
		events:      events,
		resolvers:   byProvider,
		newPassword: secret.GeneratePassword,
		logger:      logger,
	}
}

func (s *FederationService) resolver(p domain.Provider) (provider.Resolver, error) {
	r, ok := s.resolvers[p]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("login provider %q is not enabled", p))
	}
	return r, nil
}

// AuthorizationURL starts a login with the provider.
func (s *FederationService) AuthorizationURL(ctx context.Context, p domain.Provider) (string, error) {
	r, err := s.resolver(p)
	if err != nil {
		return "", err
	}
	return r.AuthorizationURL(ctx)
}

// Login resolves the callback with the provider and signs the identity in.
func (s *FederationService) Login(ctx context.Context, p domain.Provider, cb provider.Callback) (*domain.LoginResult, error) {
	r, err := s.resolver(p)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithProvider(ctx, p.String())

	ext, err := r.Resolve(ctx, cb)
	if err != nil {
		return nil, err
	}
	return s.LoginWithIdentity(ctx, ext)
}

// LoginWithIdentity signs in an already resolved external identity,
// provisioning a platform account on first use.
//
// Errors: identity.ProviderError unchanged from the identity provider,
// apperrors.ErrAlreadyExists when a concurrent attempt for the same
// identity won a conditional create (retry from the existence check),
// apperrors.ErrNotFound when an existing account has no stored credential.
func (s *FederationService) LoginWithIdentity(ctx context.Context, ext *domain.ExternalIdentity) (*domain.LoginResult, error) {
	if ext == nil || ext.ExternalID == "" || ext.Provider.Prefix() == "" {
		return nil, apperrors.InvalidInput("external identity is incomplete")
	}
	userID := ext.CandidateUserID()
	metadata := identity.ThirdPartyMetadata(ext.Provider)
	ctx = logger.WithUserID(ctx, userID)
	log := logger.WithContext(ctx, s.logger)

	exists, err := s.idp.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exists {
		password, err := s.storedPassword(ctx, userID)
		if err != nil {
			return nil, err
		}
		tokens, err := s.signIn(ctx, userID, password, metadata)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "federated user logged in")
		return &domain.LoginResult{UserID: userID, Outcome: domain.OutcomeLoggedIn, Tokens: *tokens}, nil
	}

	aliasID, aliased, err := s.aliases.GetAlias(ctx, userID)
	if err != nil {
		return nil, err
	}
	if aliased {
		// The secret belongs to the federated identity; the alias target
		// may be a native account without a credential row of its own.
		password, err := s.storedPassword(ctx, userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			password, err = s.storedPassword(ctx, aliasID)
		}
		if err != nil {
			return nil, err
		}
		tokens, err := s.signIn(ctx, aliasID, password, metadata)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "federated user logged in through alias", slog.String("alias_user_id", aliasID))
		return &domain.LoginResult{UserID: aliasID, Outcome: domain.OutcomeAliased, Tokens: *tokens, HasUserID: true}, nil
	}

	email := ext.Email
	if email == "" {
		email = domain.FallbackEmail(ext.ExternalID)
	}
	tokens, password, err := s.provision(ctx, userID, email, metadata)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, ext, password); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "federated user provisioned")
	return &domain.LoginResult{UserID: userID, Outcome: domain.OutcomeProvisioned, Tokens: *tokens}, nil
}

// storedPassword loads and opens the federated credential stored under userID.
func (s *FederationService) storedPassword(ctx context.Context, userID string) (string, error) {
	cred, err := s.credentials.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	password, err := s.sealer.Open(userID, cred.Password)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("open credential of %s: %w", userID, err))
	}
	return password, nil
}

// signIn authenticates userID with password.
func (s *FederationService) signIn(ctx context.Context, userID, password string, metadata map[string]string) (*domain.Tokens, error) {
	res, err := s.idp.Authenticate(ctx, userID, password, metadata)
	if err != nil {
		return nil, err
	}
	if res.Tokens == nil {
		return nil, &identity.ProviderError{
			Op:      "AdminInitiateAuth",
			Kind:    identity.KindProvider,
			Code:    "UnexpectedChallenge",
			Message: "challenge " + res.ChallengeName + " returned for a federated login",
		}
	}
	return res.Tokens, nil
}

// provision creates the identity provider account and moves it past the
// temporary password challenge. It returns the permanent password.
func (s *FederationService) provision(ctx context.Context, userID, email string, metadata map[string]string) (*domain.Tokens, string, error) {
	temporary, err := s.newPassword()
	if err != nil {
		return nil, "", apperrors.Internal(err)
	}
	permanent, err := s.newPassword()
	if err != nil {
		return nil, "", apperrors.Internal(err)
	}

	err = s.idp.CreateUser(ctx, identity.CreateUserInput{
		UserID:            userID,
		Attributes:        map[string]string{identity.AttrEmail: email},
		TemporaryPassword: temporary,
		SuppressMessage:   true,
	})
	if identity.IsUserExists(err) {
		return nil, "", apperrors.AlreadyExists("user", "user_id", userID)
	}
	if err != nil {
		return nil, "", err
	}

	res, err := s.idp.Authenticate(ctx, userID, temporary, metadata)
	if err != nil {
		s.logOrphan(ctx, userID, "authenticate with temporary password", err)
		return nil, "", err
	}
	if res.ChallengeName != identity.ChallengeNewPasswordRequired {
		err := &identity.ProviderError{
			Op:      "AdminInitiateAuth",
			Kind:    identity.KindProvider,
			Code:    "UnexpectedChallenge",
			Message: "expected " + identity.ChallengeNewPasswordRequired + ", got " + res.ChallengeName,
		}
		s.logOrphan(ctx, userID, "authenticate with temporary password", err)
		return nil, "", err
	}

	tokens, err := s.idp.RespondToNewPasswordChallenge(ctx, userID, res.Session, permanent, metadata)
	if err != nil {
		s.logOrphan(ctx, userID, "respond to new password challenge", err)
		return nil, "", err
	}
	return tokens, permanent, nil
}

// persist writes the profile and the credential. Both are conditional
// creates; a duplicate means another attempt for the same identity got
// there first.
func (s *FederationService) persist(ctx context.Context, ext *domain.ExternalIdentity, password string) error {
	userID := ext.CandidateUserID()

	profile := &domain.PlatformUser{
		UserID:       userID,
		DisplayName:  ext.ProfileDisplayName(),
		IconImageURL: ext.IconURL,
		SyncIndex:    true,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logOrphan(ctx, userID, "create profile", err)
		}
		return err
	}

	sealed, err := s.sealer.Seal(userID, password)
	if err != nil {
		s.logOrphan(ctx, userID, "seal credential", err)
		return apperrors.Internal(err)
	}
	err = s.credentials.Create(ctx, &domain.FederatedCredential{
		UserID:   userID,
		Password: sealed,
		Provider: ext.Provider,
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logOrphan(ctx, userID, "create credential", err)
		}
		return err
	}

	if err := s.events.PublishProfileCreated(ctx, profile, ext.Provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.profile.created event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *FederationService) logOrphan(ctx context.Context, userID, step string, err error) {
	logger.WithContext(ctx, s.logger).ErrorContext(ctx, "federated provisioning aborted, identity provider account left orphaned",
		slog.String("orphan_user_id", userID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}
