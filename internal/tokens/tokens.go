// Package tokens manages the reusable caption tokens of a project, such as
// trigger words and common tags.
package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

// Parse splits input on commas, semicolons and newlines, trims each value,
// drops empties and removes repeats. First-seen order is kept.
func Parse(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(f)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Service reads and writes project tokens.
type Service struct {
	store store.TokenStore
}

// NewService returns a Service backed by s.
func NewService(s store.TokenStore) *Service {
	return &Service{store: s}
}

// Add parses input and stores the values the project does not have yet. It
// returns the values added, in input order.
func (s *Service) Add(ctx context.Context, projectID, input string) ([]string, error) {
	if projectID == "" {
		return nil, status.UserInputf("tokens", "Select a project first")
	}
	candidates := Parse(input)
	if len(candidates) == 0 {
		return nil, status.UserInputf("tokens", "Type a token first")
	}

	existing, err := s.store.ListTokens(ctx, projectID)
	if err != nil {
		return nil, status.IO("tokens", fmt.Errorf("Error loading tokens: %w", err))
	}
	have := make(map[string]bool, len(existing))
	for _, v := range existing {
		have[v] = true
	}
	var added []string
	for _, v := range candidates {
		if !have[v] {
			added = append(added, v)
		}
	}
	if len(added) == 0 {
		return nil, status.NoOpf("tokens", "Token(s) already saved")
	}

	if err := s.store.PutTokens(ctx, projectID, added); err != nil {
		return nil, status.IO("tokens", fmt.Errorf("Error saving tokens: %w", err))
	}
	log.Debug().Str("projectId", projectID).Strs("tokens", added).Msg("Tokens added")
	return added, nil
}

// Delete removes one token. Removing a missing token succeeds.
func (s *Service) Delete(ctx context.Context, projectID, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return status.UserInputf("tokens", "Empty token")
	}
	if err := s.store.DeleteToken(ctx, projectID, value); err != nil {
		return status.IO("tokens", fmt.Errorf("Error deleting token: %w", err))
	}
	return nil
}

// List returns the project's tokens sorted ascending.
func (s *Service) List(ctx context.Context, projectID string) ([]string, error) {
	values, err := s.store.ListTokens(ctx, projectID)
	if err != nil {
		return nil, status.IO("tokens", fmt.Errorf("Error loading tokens: %w", err))
	}
	return values, nil
}

// AddedSummary returns the status line after an Add.
func AddedSummary(added []string) string {
	return fmt.Sprintf("Added %d token(s)", len(added))
}
