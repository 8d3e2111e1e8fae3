// Package identity resolves the caller's user identifier for each request.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/store"
)

const (
	// UserHeaderName carries a user id set by an upstream authenticator. It is
	// read only when Options.TrustUserHeader is set.
	UserHeaderName   = "X-User-ID"
	AnonCookieName   = "chatplan_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveNickname(userID string) string {
	if len(userID) > 13 {
		return "user-" + userID[len(userID)-8:]
	}
	return "user-" + userID
}

// ensureMember creates the member row on first sight and refreshes last_seen
// afterwards.
func ensureMember(ctx context.Context, repo store.Repository, userID string) error {
	member, err := repo.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if member != nil {
		return repo.TouchMember(ctx, userID, now)
	}
	return repo.UpsertMember(ctx, &domain.Member{
		UserID:     userID,
		Nickname:   deriveNickname(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Options controls how callers are identified.
type Options struct {
	// Dev relaxes the Secure flag on the anonymous cookie.
	Dev bool
	// TrustUserHeader takes X-User-ID at face value. Any client can set the
	// header, so enable this only when a proxy in front strips or sets it.
	TrustUserHeader bool
}

// resolveUserID prefers the authenticator header when it is trusted and falls
// back to the anonymous device cookie.
func resolveUserID(w http.ResponseWriter, r *http.Request, opts Options) (string, error) {
	if h := strings.TrimSpace(r.Header.Get(UserHeaderName)); opts.TrustUserHeader && h != "" {
		if !userIDPattern.MatchString(h) {
			return "", fmt.Errorf("invalid %s header", UserHeaderName)
		}
		return h, nil
	}
	return getOrCreateAnonID(w, r, opts.Dev)
}

// Middleware injects the caller's user id and makes sure a member row exists.
func Middleware(repo store.Repository, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUserID(w, r, opts)
			if err != nil {
				http.Error(w, `{"error":"invalid user identity"}`, http.StatusBadRequest)
				return
			}

			if err := ensureMember(r.Context(), repo, userID); err != nil {
				slog.Error("Failed to initialize member", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
