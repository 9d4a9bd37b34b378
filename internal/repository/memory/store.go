// Package memory is a process-local storage backend for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zerorich/rating-bot/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	users    map[int64]domain.User
	links    map[string]int64
	messages []domain.Message
	ratings  []domain.Rating
}

func NewStore() *Store {
	return &Store{
		users: make(map[int64]domain.User),
		links: make(map[string]int64),
	}
}

func (s *Store) FindUserByID(_ context.Context, userID int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("memory: user %d: %w", userID, domain.ErrNotFound)
	}
	return u, nil
}

func (s *Store) FindUserByLinkToken(_ context.Context, token string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.links[token]
	if !ok {
		return domain.User{}, fmt.Errorf("memory: link %q: %w", token, domain.ErrNotFound)
	}
	return s.users[id], nil
}

func (s *Store) InsertUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.UserID]; exists {
		return fmt.Errorf("memory: user %d: %w", u.UserID, domain.ErrAlreadyExists)
	}
	if _, exists := s.links[u.LinkToken]; exists {
		return fmt.Errorf("memory: link %q: %w", u.LinkToken, domain.ErrAlreadyExists)
	}
	s.users[u.UserID] = u
	s.links[u.LinkToken] = u.UserID
	return nil
}

func (s *Store) InsertMessage(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, m)
	return nil
}

func (s *Store) ListMessages(_ context.Context, recipientUserID int64, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Message
	for _, m := range s.messages {
		if m.RecipientUserID == recipientUserID {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].SentAt.After(result[j].SentAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) InsertRating(_ context.Context, r domain.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Message != nil {
		m := *r.Message
		r.Message = &m
	}
	s.ratings = append(s.ratings, r)
	return nil
}

func (s *Store) ListRatings(_ context.Context, recipientUserID int64, limit int) ([]domain.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Rating
	for _, r := range s.ratings {
		if r.RecipientUserID == recipientUserID {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].SentAt.After(result[j].SentAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
