package days

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

type digestDocument struct {
	Tasks    []Task   `json:"tasks"`
	Notes    []Note   `json:"notes"`
	TaskTags []string `json:"task_tag"`
	NoteTags []string `json:"note_tag"`
}

// Digest returns the hex SHA-256 of the day's pulled content, stamp excluded.
// Two devices holding the same day content compute the same digest.
func (s *Service) Digest(ctx context.Context, userID UserID, day DayKey) (string, error) {
	content, err := s.Pull(ctx, userID, day)
	if err != nil {
		return "", err
	}
	return s.digestOf(content)
}

// NeedsSync reports whether the client's digest differs from the stored day.
func (s *Service) NeedsSync(ctx context.Context, userID UserID, day DayKey, clientDigest string) (bool, error) {
	serverDigest, err := s.Digest(ctx, userID, day)
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(serverDigest, strings.TrimSpace(clientDigest)), nil
}

func (s *Service) digestOf(content SyncContent) (string, error) {
	encoded, err := json.Marshal(digestDocument{
		Tasks:    content.Tasks,
		Notes:    content.Notes,
		TaskTags: content.TaskTags,
		NoteTags: content.NoteTags,
	})
	if err != nil {
		s.logError(opDigest, reasonEncodeFailed, err)
		return "", newServiceError(opDigest, reasonEncodeFailed, err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
