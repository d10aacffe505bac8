package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawmeet/pawmeet/libs/auth"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/services/auth-service/internal/audit"
	"github.com/pawmeet/pawmeet/services/auth-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/auth-service/internal/sessions"
	"github.com/pawmeet/pawmeet/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// accessTokenTTL bounds the signed access token. The long-lived part of a
// session is the refresh token, whose TTL comes from configuration.
const accessTokenTTL = time.Hour

type AuthHandler struct {
	signer     TokenSigner
	pool       *db.Pool
	users      *storage.UserRepository
	audit      *audit.Repository
	outbox     *outbox.Repository
	refresh    *sessions.RefreshRepository
	refreshTTL time.Duration
}

func NewAuthHandler(
	signer TokenSigner,
	pool *db.Pool,
	users *storage.UserRepository,
	auditRepo *audit.Repository,
	outboxRepo *outbox.Repository,
	refreshRepo *sessions.RefreshRepository,
	refreshTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		signer:     signer,
		pool:       pool,
		users:      users,
		audit:      auditRepo,
		outbox:     outboxRepo,
		refresh:    refreshRepo,
		refreshTTL: refreshTTL,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenPair is the response body for every endpoint that establishes or
// rotates a session.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type meResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	hash, err := hashPassword(password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	user := storage.User{
		ID:           uuid.NewString(),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Email:        email,
		PasswordHash: hash,
		Role:         "member",
	}

	// The row and its announcement commit together or not at all.
	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.users.CreateTx(ctx, tx, user); err != nil {
		if isUniqueViolation(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	if err := h.stageUserCreated(ctx, tx, user); err != nil {
		http.Error(w, "failed to enqueue user event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	pair, err := h.mintTokenPair(ctx, user)
	if err != nil {
		http.Error(w, "failed to issue tokens", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	default:
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if verifyPassword(user.PasswordHash, password) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	pair, err := h.mintTokenPair(r.Context(), user)
	if err != nil {
		http.Error(w, "failed to issue tokens", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh rotates the session: the presented token is revoked before its
// replacement is minted, so each refresh token is good for exactly one use.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	record, err := h.refresh.GetByHash(ctx, sessions.HashToken(raw))
	switch {
	case err == nil:
	case sessions.IsNotFound(err):
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	default:
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt != nil || record.ExpiresAt.Before(time.Now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(ctx, record.UserID)
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	default:
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	if err := h.refresh.Revoke(ctx, record.ID); err != nil {
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}
	pair, err := h.mintTokenPair(ctx, user)
	if err != nil {
		http.Error(w, "failed to issue tokens", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the presented refresh token. Unknown tokens report success
// rather than telling the caller whether the token ever existed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	record, err := h.refresh.GetByHash(ctx, sessions.HashToken(raw))
	switch {
	case err == nil:
	case sessions.IsNotFound(err):
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if record.RevokedAt == nil {
		if err := h.refresh.Revoke(ctx, record.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.Sub)
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	default:
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:      claims.Sub,
		DisplayName: user.DisplayName,
		Role:        claims.Role,
	})
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if !h.signer.CanRotate() {
		http.Error(w, "rotation not enabled", http.StatusBadRequest)
		return
	}
	if !h.rotateAuthorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ActiveKid == "" {
		http.Error(w, "active_kid is required", http.StatusBadRequest)
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		http.Error(w, "invalid active_kid", http.StatusBadRequest)
		return
	}

	if h.audit != nil {
		_ = h.audit.RecordWithOutbox(r.Context(), h.outbox, "jwt.rotate", "", map[string]any{
			"active_kid": req.ActiveKid,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.audit == nil {
		http.Error(w, "audit not available", http.StatusNotFound)
		return
	}
	if !h.rotateAuthorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// rotateAuthorized gates the operational endpoints behind the shared rotate
// key. An empty configured key disables them entirely.
func (h *AuthHandler) rotateAuthorized(r *http.Request) bool {
	presented := r.Header.Get("X-Rotate-Key")
	return presented != "" && presented == h.signer.RotateKey()
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func (h *AuthHandler) stageUserCreated(ctx context.Context, tx pgx.Tx, user storage.User) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":      user.ID,
		"display_name": user.DisplayName,
		"email":        user.Email,
		"role":         user.Role,
		"created_at":   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   user.ID,
		EventType:     outbox.EventUserCreated,
		Payload:       payload,
	})
}

func (h *AuthHandler) mintTokenPair(ctx context.Context, user storage.User) (tokenPair, error) {
	now := time.Now()
	access, err := h.signer.Sign(auth.Claims{
		Sub:  user.ID,
		Role: user.Role,
		Iat:  now.Unix(),
		Exp:  now.Add(accessTokenTTL).Unix(),
	})
	if err != nil {
		return tokenPair{}, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return tokenPair{}, err
	}
	refresh := hex.EncodeToString(raw)
	if _, err := h.refresh.Create(ctx, user.ID, refresh, now.Add(h.refreshTTL)); err != nil {
		return tokenPair{}, err
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
