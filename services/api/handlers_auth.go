package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, badRequest("a valid email is required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, badRequest("password must be at least 8 characters"))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)

	var existing userModel
	err = orm.Where("email = ? AND deleted_at IS NULL", req.Email).First(&existing).Error
	switch {
	case err == nil:
		respondError(w, &apiError{Status: http.StatusConflict, Code: codeInvalidInput, Message: "email already registered"})
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, internal(err))
		return
	}

	user := userModel{ID: uuid.New(), Email: req.Email, PasswordHash: hash}
	if err := orm.Create(&user).Error; err != nil {
		respondError(w, internal(err))
		return
	}

	tokens, err := a.openAuthSession(r, user.ID)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	a.log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	respondJSON(w, http.StatusCreated, map[string]any{"user": user.toAPI(), "tokens": tokens})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var user userModel
	err := a.store.ORM.WithContext(ctx).
		Where("email = ? AND deleted_at IS NULL", req.Email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !checkPassword(user.PasswordHash, req.Password)) {
		respondError(w, &apiError{
			Status:  http.StatusUnauthorized,
			Code:    codeBadCredentials,
			Message: "invalid email or password",
		})
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}

	tokens, err := a.openAuthSession(r, user.ID)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user.toAPI(), "tokens": tokens})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		respondError(w, badRequest("refresh_token is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)
	now := time.Now().UTC()

	var session authSessionModel
	err := orm.Where("refresh_token = ?", hashRefreshToken(req.RefreshToken)).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, unauthorized("unknown refresh token"))
		return
	}
	if err != nil {
		respondError(w, internal(err))
		return
	}
	if !session.active(now) {
		respondError(w, unauthorized("refresh token expired or revoked"))
		return
	}

	// Rotate: the old refresh token dies with this exchange.
	if err := orm.Model(&session).Update("revoked_at", now).Error; err != nil {
		respondError(w, internal(err))
		return
	}

	tokens, err := a.openAuthSession(r, session.UserID)
	if err != nil {
		respondError(w, internal(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, badRequest(err.Error()))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	// Revoking an unknown token is still a successful logout.
	a.store.ORM.WithContext(ctx).
		Model(&authSessionModel{}).
		Where("refresh_token = ? AND revoked_at IS NULL", hashRefreshToken(req.RefreshToken)).
		Update("revoked_at", time.Now().UTC())

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *API) openAuthSession(r *http.Request, userID uuid.UUID) (*tokenPair, error) {
	access, err := a.auth.issueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	raw, hashed, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	session := authSessionModel{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: hashed,
		ExpiresAt:    time.Now().UTC().Add(a.auth.refreshTTL),
	}
	if err := a.store.ORM.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}

	return &tokenPair{AccessToken: access, RefreshToken: raw}, nil
}
