package identity

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/horike37/serverless-application/services/user/internal/domain"
)

// CognitoAPI is the subset of the Cognito user pool API the adapter calls.
// *cognitoidentityprovider.Client satisfies it.
type CognitoAPI interface {
	AdminGetUser(ctx context.Context, in *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminInitiateAuth(ctx context.Context, in *cip.AdminInitiateAuthInput, optFns ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error)
	AdminRespondToAuthChallenge(ctx context.Context, in *cip.AdminRespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.AdminRespondToAuthChallengeOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, in *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	DescribeUserPool(ctx context.Context, in *cip.DescribeUserPoolInput, optFns ...func(*cip.Options)) (*cip.DescribeUserPoolOutput, error)
}

// Cognito implements Store against an Amazon Cognito user pool using the
// server-side (ADMIN_NO_SRP_AUTH) flow.
type Cognito struct {
	api        CognitoAPI
	userPoolID string
	clientID   string
}

// NewCognito creates a Cognito-backed Store.
func NewCognito(api CognitoAPI, userPoolID, clientID string) *Cognito {
	return &Cognito{api: api, userPoolID: userPoolID, clientID: clientID}
}

// GetUser implements Store.
func (c *Cognito) GetUser(ctx context.Context, userID string) (*User, error) {
	out, err := c.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(userID),
	})
	if err != nil {
		return nil, classify("AdminGetUser", err)
	}

	u := &User{
		UserID:     aws.ToString(out.Username),
		Status:     string(out.UserStatus),
		Enabled:    out.Enabled,
		Attributes: make(map[string]string, len(out.UserAttributes)),
	}
	for _, a := range out.UserAttributes {
		u.Attributes[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	if out.UserCreateDate != nil {
		u.CreatedAt = out.UserCreateDate.UTC()
	}
	return u, nil
}

// Exists implements Store. Only user-not-found counts as absence; any other
// failure is returned.
func (c *Cognito) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := c.GetUser(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case IsUserNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Authenticate implements Store.
func (c *Cognito) Authenticate(ctx context.Context, userID, password string, metadata map[string]string) (*AuthResult, error) {
	out, err := c.api.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
		UserPoolId: aws.String(c.userPoolID),
		ClientId:   aws.String(c.clientID),
		AuthFlow:   types.AuthFlowTypeAdminNoSrpAuth,
		AuthParameters: map[string]string{
			"USERNAME": userID,
			"PASSWORD": password,
		},
		ClientMetadata: metadata,
	})
	if err != nil {
		return nil, classify("AdminInitiateAuth", err)
	}

	return &AuthResult{
		Tokens:        tokensFrom(out.AuthenticationResult),
		ChallengeName: string(out.ChallengeName),
		Session:       aws.ToString(out.Session),
	}, nil
}

// CreateUser implements Store.
func (c *Cognito) CreateUser(ctx context.Context, in CreateUserInput) error {
	attrs := make([]types.AttributeType, 0, len(in.Attributes))
	for name, value := range in.Attributes {
		attrs = append(attrs, types.AttributeType{Name: aws.String(name), Value: aws.String(value)})
	}

	req := &cip.AdminCreateUserInput{
		UserPoolId:        aws.String(c.userPoolID),
		Username:          aws.String(in.UserID),
		UserAttributes:    attrs,
		TemporaryPassword: aws.String(in.TemporaryPassword),
	}
	if in.SuppressMessage {
		req.MessageAction = types.MessageActionTypeSuppress
	}

	if _, err := c.api.AdminCreateUser(ctx, req); err != nil {
		return classify("AdminCreateUser", err)
	}
	return nil
}

// RespondToNewPasswordChallenge implements Store.
func (c *Cognito) RespondToNewPasswordChallenge(ctx context.Context, userID, session, newPassword string, metadata map[string]string) (*domain.Tokens, error) {
	out, err := c.api.AdminRespondToAuthChallenge(ctx, &cip.AdminRespondToAuthChallengeInput{
		UserPoolId:    aws.String(c.userPoolID),
		ClientId:      aws.String(c.clientID),
		ChallengeName: types.ChallengeNameTypeNewPasswordRequired,
		ChallengeResponses: map[string]string{
			"USERNAME":     userID,
			"NEW_PASSWORD": newPassword,
		},
		Session:        aws.String(session),
		ClientMetadata: metadata,
	})
	if err != nil {
		return nil, classify("AdminRespondToAuthChallenge", err)
	}

	tokens := tokensFrom(out.AuthenticationResult)
	if tokens == nil {
		return nil, &ProviderError{
			Op:      "AdminRespondToAuthChallenge",
			Kind:    KindProvider,
			Code:    "UnexpectedChallenge",
			Message: "challenge " + string(out.ChallengeName) + " returned instead of tokens",
		}
	}
	return tokens, nil
}

// UpdateAttribute implements Store.
func (c *Cognito) UpdateAttribute(ctx context.Context, userID, name, value string) error {
	_, err := c.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(userID),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(name), Value: aws.String(value)},
		},
	})
	if err != nil {
		return classify("AdminUpdateUserAttributes", err)
	}
	return nil
}

// Ping checks that the user pool is reachable with the configured
// credentials. It backs the readiness probe.
func (c *Cognito) Ping(ctx context.Context) error {
	if _, err := c.api.DescribeUserPool(ctx, &cip.DescribeUserPoolInput{UserPoolId: aws.String(c.userPoolID)}); err != nil {
		return classify("DescribeUserPool", err)
	}
	return nil
}

func tokensFrom(r *types.AuthenticationResultType) *domain.Tokens {
	if r == nil {
		return nil
	}
	return &domain.Tokens{
		AccessToken:  aws.ToString(r.AccessToken),
		IDToken:      aws.ToString(r.IdToken),
		RefreshToken: aws.ToString(r.RefreshToken),
		ExpiresIn:    r.ExpiresIn,
	}
}

// classify is the single place provider errors are mapped onto ErrorKind.
func classify(op string, err error) error {
	pe := &ProviderError{Op: op, Kind: KindProvider, Code: "UnknownError", Message: err.Error(), Err: err}

	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		pe.Kind = KindUserNotFound
	}
	var exists *types.UsernameExistsException
	if errors.As(err, &exists) {
		pe.Kind = KindUserExists
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
		pe.Message = apiErr.ErrorMessage()
		switch pe.Code {
		case "UserNotFoundException":
			pe.Kind = KindUserNotFound
		case "UsernameExistsException":
			pe.Kind = KindUserExists
		}
	}
	return pe
}
