// Package services contains application services for the client.
// This file defines the authentication service: login, registration,
// logout, password recovery, and the current user's profile and avatar.
package services

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/apiclient/internal/apiclient"
	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/logging"
)

// API is the subset of *apiclient.Client the services use.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	UploadFile(ctx context.Context, path string, file apiclient.File, onProgress func(percent int), out any, opts ...apiclient.RequestOption) error
}

// TokenStore is where the service puts the tokens issued on login.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error
	ClearTokens(ctx context.Context)
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login/Register: obtain a token pair and persist it before returning.
//   - Logout: notify the server on a best-effort basis and always clear
//     the stored tokens.
//   - Profile/UploadAvatar: authenticated calls for the current user.
//
// Every error returned is an *apiclient.Error.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	Profile(ctx context.Context) (*models.User, error)
	UploadAvatar(ctx context.Context, file apiclient.File, onProgress func(percent int)) (*models.Avatar, error)
	IsAuthenticated() bool
}

type authService struct {
	api      API
	tokens   TokenStore
	deviceID string
	logger   logging.Logger
}

// NewAuthService constructs an AuthService. deviceID is reported on login
// and registration; logger may be nil.
func NewAuthService(api API, tokens TokenStore, deviceID string, logger logging.Logger) AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &authService{api: api, tokens: tokens, deviceID: deviceID, logger: logger}
}

func (a *authService) Login(ctx context.Context, email, password string) (*models.User, error) {
	req := models.LoginRequest{Email: email, Password: password, DeviceID: a.deviceID}

	var env models.Envelope[models.AuthResponse]
	if err := a.api.Post(ctx, "/auth/login", req, &env, apiclient.WithoutAuth()); err != nil {
		return nil, err
	}
	return a.startSession(ctx, env)
}

func (a *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if req.DeviceID == "" {
		req.DeviceID = a.deviceID
	}

	var env models.Envelope[models.AuthResponse]
	if err := a.api.Post(ctx, "/auth/register", req, &env, apiclient.WithoutAuth()); err != nil {
		return nil, err
	}
	return a.startSession(ctx, env)
}

func (a *authService) startSession(ctx context.Context, env models.Envelope[models.AuthResponse]) (*models.User, error) {
	data, err := unwrap(env)
	if err != nil {
		return nil, err
	}

	t := data.Tokens
	if err := a.tokens.SetTokens(ctx, t.AccessToken, t.RefreshToken, t.ExpiresIn); err != nil {
		return nil, apiclient.NewStorageError(err)
	}

	a.logger.Info(ctx, "session started", "user_id", data.User.ID)
	return &data.User, nil
}

// Logout tells the server to revoke the refresh token. Server errors are
// logged and swallowed: the local session ends either way.
func (a *authService) Logout(ctx context.Context) error {
	defer a.tokens.ClearTokens(context.WithoutCancel(ctx))

	if a.tokens.AccessToken() == "" {
		return nil
	}

	body := models.RefreshTokenRequest{RefreshToken: a.tokens.RefreshToken()}
	if err := a.api.Post(ctx, "/auth/logout", body, nil, apiclient.WithoutRetry()); err != nil {
		a.logger.Warn(ctx, "logout request failed", "error", err)
	}
	return nil
}

func (a *authService) ForgotPassword(ctx context.Context, email string) error {
	var env models.Envelope[struct{}]
	if err := a.api.Post(ctx, "/auth/forgot-password", models.ForgotPasswordRequest{Email: email}, &env, apiclient.WithoutAuth()); err != nil {
		return err
	}
	return checkSuccess(env)
}

func (a *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := models.ResetPasswordRequest{Token: token, NewPassword: newPassword}

	var env models.Envelope[struct{}]
	if err := a.api.Post(ctx, "/auth/reset-password", req, &env, apiclient.WithoutAuth()); err != nil {
		return err
	}
	return checkSuccess(env)
}

func (a *authService) VerifyEmail(ctx context.Context, token string) error {
	var env models.Envelope[struct{}]
	if err := a.api.Post(ctx, "/auth/verify-email", models.VerifyEmailRequest{Token: token}, &env); err != nil {
		return err
	}
	return checkSuccess(env)
}

func (a *authService) Profile(ctx context.Context) (*models.User, error) {
	var env models.Envelope[models.User]
	if err := a.api.Get(ctx, "/user/profile", &env); err != nil {
		return nil, err
	}
	return unwrap(env)
}

func (a *authService) UploadAvatar(ctx context.Context, file apiclient.File, onProgress func(percent int)) (*models.Avatar, error) {
	var env models.Envelope[models.UploadAvatarResponse]
	if err := a.api.UploadFile(ctx, "/user/avatar", file, onProgress, &env); err != nil {
		return nil, err
	}
	data, err := unwrap(env)
	if err != nil {
		return nil, err
	}
	return &data.Avatar, nil
}

func (a *authService) IsAuthenticated() bool {
	return a.tokens.AccessToken() != ""
}

// unwrap returns the payload of a 2xx envelope that still reports failure
// or carries no data as an *apiclient.Error.
func unwrap[T any](env models.Envelope[T]) (*T, error) {
	if err := checkSuccess(env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, &apiclient.Error{
			Message:    "response has no data",
			StatusCode: http.StatusInternalServerError,
			Code:       apiclient.CodeUnknownError,
		}
	}
	return env.Data, nil
}

func checkSuccess[T any](env models.Envelope[T]) error {
	if env.Success {
		return nil
	}

	status := env.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := apiclient.CodeUnknownError
	if env.Code != "" {
		code = apiclient.Code(env.Code)
	}
	msg := env.Message
	if msg == "" {
		msg = env.Error
	}
	if msg == "" {
		msg = "request was not successful"
	}
	return &apiclient.Error{Message: msg, StatusCode: status, Code: code}
}
