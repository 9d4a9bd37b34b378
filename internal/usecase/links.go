package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zerorich/rating-bot/internal/domain"
)

// StartPayloadPrefix prefixes the link token in the /start argument.
const StartPayloadPrefix = "send_"

// LinkRegistry maps users to their stable shareable link token.
type LinkRegistry struct {
	users UserRepository
	log   *slog.Logger
	now   func() time.Time
}

func NewLinkRegistry(users UserRepository, log *slog.Logger) (*LinkRegistry, error) {
	if users == nil {
		return nil, errors.New("usecase: user repository must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &LinkRegistry{users: users, log: log, now: time.Now}, nil
}

// GetOrCreateLink returns the user's link token, registering the user on first call.
func (r *LinkRegistry) GetOrCreateLink(ctx context.Context, userID int64, displayName string) (string, error) {
	u, err := r.users.FindUserByID(ctx, userID)
	if err == nil {
		return u.LinkToken, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", newError(ErrorPersistence, "user_lookup_error", err)
	}

	u = domain.User{
		UserID:      userID,
		DisplayName: displayName,
		LinkToken:   newUUID(),
		CreatedAt:   r.now().UTC(),
	}
	err = r.users.InsertUser(ctx, u)
	switch {
	case err == nil:
		r.log.Info("registered link owner", "user_id", userID)
		return u.LinkToken, nil
	case errors.Is(err, domain.ErrAlreadyExists):
		// Lost a race with a concurrent /start from the same user.
		existing, ferr := r.users.FindUserByID(ctx, userID)
		if ferr != nil {
			return "", newError(ErrorPersistence, "user_lookup_error", ferr)
		}
		return existing.LinkToken, nil
	default:
		return "", newError(ErrorPersistence, "user_insert_error", err)
	}
}

// ResolveLink finds the owner of a link token.
func (r *LinkRegistry) ResolveLink(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, newError(ErrorInvalidLink, "empty_token", nil)
	}
	u, err := r.users.FindUserByLinkToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, newError(ErrorInvalidLink, "unknown_token", err)
	}
	if err != nil {
		return domain.User{}, newError(ErrorPersistence, "link_lookup_error", err)
	}
	return u, nil
}

// LinkURL builds the shareable link for a token.
func LinkURL(entryURL, token string) string {
	return fmt.Sprintf("%s?start=%s%s", strings.TrimRight(entryURL, "/"), StartPayloadPrefix, token)
}

var newUUID = func() string {
	return uuid.NewString()
}
