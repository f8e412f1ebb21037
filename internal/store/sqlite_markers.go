package store

import (
	"fmt"
	"strings"
)

const (
	// KeyAppliedMarker holds the marker of the last release handed to an installer.
	KeyAppliedMarker = "last_applied_update_marker"
	// KeyPendingMarker holds a marker waiting for the helper to confirm success.
	KeyPendingMarker = "pending_update_marker"
)

// AppliedMarker returns the stored applied marker, or "" when none was recorded.
func (s *Store) AppliedMarker() (string, error) {
	v, _, err := s.GetAppState(KeyAppliedMarker)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (s *Store) SetAppliedMarker(marker string) error {
	return s.SetAppState(KeyAppliedMarker, strings.TrimSpace(marker))
}

func (s *Store) PendingMarker() (string, bool, error) {
	v, ok, err := s.GetAppState(KeyPendingMarker)
	if err != nil {
		return "", false, err
	}
	v = strings.TrimSpace(v)
	return v, ok && v != "", nil
}

func (s *Store) SetPendingMarker(marker string) error {
	return s.SetAppState(KeyPendingMarker, strings.TrimSpace(marker))
}

func (s *Store) ClearPendingMarker() error {
	return s.DeleteAppState(KeyPendingMarker)
}

// PromotePendingMarker moves the pending marker into the applied slot in one
// transaction. It returns the promoted marker, or "" when nothing was pending.
func (s *Store) PromotePendingMarker() (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin promote marker: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pending, ok, err := getAppState(tx, KeyPendingMarker)
	if err != nil {
		return "", err
	}
	pending = strings.TrimSpace(pending)
	if !ok || pending == "" {
		return "", nil
	}
	if err := setAppState(tx, KeyAppliedMarker, pending); err != nil {
		return "", err
	}
	if err := deleteAppState(tx, KeyPendingMarker); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit promote marker: %w", err)
	}
	return pending, nil
}
