package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/client/models"
	"github.com/dmitrijs2005/apiclient/internal/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	maxJSONBody    = 1 << 20
	maxAvatarBytes = 5 << 20
	minPasswordLen = 8
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeData[T any](w http.ResponseWriter, status int, message string, data *T) {
	writeJSON(w, status, models.Envelope[T]{
		Success:    true,
		Data:       data,
		Message:    message,
		StatusCode: status,
		Timestamp:  timestamp(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	env := models.Envelope[struct{}]{
		Success:    false,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Timestamp:  timestamp(),
	}
	if len(details) > 0 {
		env.Details, _ = json.Marshal(details)
	}
	writeJSON(w, status, env)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body", nil)
		return false
	}
	return true
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == strings.TrimSpace(email)
}

// issueTokens creates a fresh access/refresh pair for userID.
func (s *Server) issueTokens(userID string) (models.Tokens, error) {
	access, err := GenerateToken(userID, s.secret, s.now(), s.config.AccessTokenTTL)
	if err != nil {
		return models.Tokens{}, err
	}
	refresh, err := s.refresh.Issue(userID)
	if err != nil {
		return models.Tokens{}, err
	}
	return models.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.AccessTokenTTL / time.Second),
	}, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	details := map[string]string{}
	if !validEmail(req.Email) {
		details["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLen {
		details["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	if strings.TrimSpace(req.FirstName) == "" {
		details["firstName"] = "is required"
	}
	if strings.TrimSpace(req.LastName) == "" {
		details["lastName"] = "is required"
	}
	if len(details) > 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", details)
		return
	}

	user, err := s.users.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			writeError(w, http.StatusConflict, "CONFLICT", "email is already registered", nil)
			return
		}
		s.internalError(w, r, err)
		return
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if vt, err := s.verifyTokens.Issue(user.ID); err == nil {
		s.notify("verify-email", user.Email, vt)
	}

	s.logger.Info(r.Context(), "user registered", "user_id", user.ID)
	writeData(w, http.StatusCreated, "registration successful", &models.AuthResponse{User: user, Tokens: tokens})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
		return
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "user logged in", "user_id", user.ID, "device_id", req.DeviceID)
	writeData(w, http.StatusOK, "login successful", &models.AuthResponse{User: user, Tokens: tokens})
}

// handleRefresh rotates a refresh token: the presented one is consumed and
// a new pair is issued.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, err := s.refresh.Consume(req.RefreshToken)
	if err != nil {
		msg := "invalid refresh token"
		if errors.Is(err, common.ErrRefreshTokenExpired) {
			msg = "Refresh token expired"
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg, nil)
		return
	}

	user, err := s.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists", nil)
		return
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "token refreshed", &models.AuthResponse{User: user, Tokens: tokens})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	_ = json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req)

	if req.RefreshToken != "" {
		s.refresh.Revoke(req.RefreshToken)
	} else {
		s.refresh.RevokeUser(userIDFromContext(r.Context()))
	}

	writeData[struct{}](w, http.StatusOK, "logged out", nil)
}

// handleForgotPassword answers the same way whether or not the email is
// registered.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if user, err := s.users.FindByEmail(r.Context(), req.Email); err == nil {
		if token, err := s.resetTokens.Issue(user.ID); err == nil {
			s.notify("reset-password", user.Email, token)
		}
	}

	writeData[struct{}](w, http.StatusOK, "if the email is registered, a reset link has been sent", nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.NewPassword) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed",
			map[string]string{"newPassword": fmt.Sprintf("must be at least %d characters", minPasswordLen)})
		return
	}

	userID, err := s.resetTokens.Consume(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid or expired reset token", nil)
		return
	}

	if err := s.users.SetPassword(r.Context(), userID, req.NewPassword); err != nil {
		s.internalError(w, r, err)
		return
	}
	// Existing sessions end with the old password.
	s.refresh.RevokeUser(userID)

	writeData[struct{}](w, http.StatusOK, "password has been reset", nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller := userIDFromContext(r.Context())
	owner, err := s.verifyTokens.Consume(req.Token)
	if err != nil || owner != caller {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid or expired verification token", nil)
		return
	}

	if _, err := s.users.Update(r.Context(), caller, func(u *models.User) { u.IsEmailVerified = true }); err != nil {
		s.internalError(w, r, err)
		return
	}

	writeData[struct{}](w, http.StatusOK, "email verified", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
		return
	}
	writeData(w, http.StatusOK, "", &user)
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<16))
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if len(data) > maxAvatarBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "avatar is too large", nil)
		return
	}

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	id := uuid.NewString()
	s.avatarMu.Lock()
	s.avatars[id] = avatar{contentType: contentType, data: data}
	s.avatarMu.Unlock()

	url := "/" + s.config.APIVersion + "/avatars/" + id
	if _, err := s.users.Update(r.Context(), userIDFromContext(r.Context()), func(u *models.User) { u.Avatar = url }); err != nil {
		s.internalError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, "avatar uploaded", &models.UploadAvatarResponse{
		Avatar: models.Avatar{ID: id, URL: url, ThumbnailURL: url},
	})
}

func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.avatarMu.RLock()
	a, ok := s.avatars[id]
	s.avatarMu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "avatar not found", nil)
		return
	}

	w.Header().Set("Content-Type", a.contentType)
	_, _ = w.Write(a.data)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(context.WithoutCancel(r.Context()), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil)
}
