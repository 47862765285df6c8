package wa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// MeowCredentialStore reads and wipes pairing credentials from the
// shared sqlstore container, plus per-session media directories on
// disk.
type MeowCredentialStore struct {
	dialer  *MeowDialer
	baseDir string
	log     *slog.Logger
}

func NewMeowCredentialStore(dialer *MeowDialer, baseDir string, log *slog.Logger) *MeowCredentialStore {
	return &MeowCredentialStore{dialer: dialer, baseDir: baseDir, log: log}
}

// HasCredentials reports whether the session holds a completed pairing.
// A provisioned device without a remote identity does not count.
func (s *MeowCredentialStore) HasCredentials(ctx context.Context, sessionID int64) bool {
	dev, err := s.dialer.deviceFor(ctx, sessionID)
	if err != nil {
		s.log.Warn("credential lookup failed", "session", sessionID, "error", err)
		return false
	}
	return dev != nil && dev.ID != nil
}

func (s *MeowCredentialStore) WipeCredentials(ctx context.Context, sessionID int64) error {
	dev, err := s.dialer.deviceFor(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}
	if dev == nil {
		return nil
	}
	if err := s.dialer.container.DeleteDevice(ctx, dev); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

func (s *MeowCredentialStore) RemoveSessionDirectory(sessionID int64) error {
	if s.baseDir == "" {
		return nil
	}
	dir := filepath.Join(s.baseDir, fmt.Sprintf("session-%d", sessionID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}
