package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/micro-ha/kiosk-lock/internal/model"
)

func openTestRepo(t *testing.T, sealer *Sealer) *Repository {
	t.Helper()
	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "kiosk.db"), sealer, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestApplyValuesPutAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, nil)

	if err := repo.ApplyValues(ctx, map[string]string{"a": "1", "b": "2"}, nil); err != nil {
		t.Fatalf("ApplyValues() error = %v", err)
	}
	if err := repo.ApplyValues(ctx, map[string]string{"a": "3"}, []string{"b", "missing"}); err != nil {
		t.Fatalf("ApplyValues() error = %v", err)
	}
	values, err := repo.LoadValues(ctx)
	if err != nil {
		t.Fatalf("LoadValues() error = %v", err)
	}
	if len(values) != 1 || values["a"] != "3" {
		t.Fatalf("LoadValues() = %v, want map[a:3]", values)
	}
}

func TestSealedValuesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	keyPath := filepath.Join(t.TempDir(), "keys", "kiosk.key")
	sealer, err := LoadOrCreateSealer(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateSealer() error = %v", err)
	}
	repo := openTestRepo(t, sealer)

	if err := repo.ApplyValues(ctx, map[string]string{model.KeyToken: "secret-token"}, nil); err != nil {
		t.Fatalf("ApplyValues() error = %v", err)
	}

	var raw string
	if err := repo.SQLDB().QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, model.KeyToken).Scan(&raw); err != nil {
		t.Fatalf("select raw value: %v", err)
	}
	if strings.Contains(raw, "secret-token") || !strings.HasPrefix(raw, sealedPrefix) {
		t.Fatalf("raw value = %q, want sealed ciphertext", raw)
	}

	reloaded, err := LoadOrCreateSealer(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateSealer() reload error = %v", err)
	}
	repo.sealer = reloaded
	values, err := repo.LoadValues(ctx)
	if err != nil {
		t.Fatalf("LoadValues() error = %v", err)
	}
	if got := values[model.KeyToken]; got != "secret-token" {
		t.Fatalf("token = %q, want %q", got, "secret-token")
	}
}

func TestSealerOpenPassesPlaintextThrough(t *testing.T) {
	var s *Sealer
	got, err := s.Open("plain")
	if err != nil || got != "plain" {
		t.Fatalf("Open() = %q, %v, want plain", got, err)
	}
	if _, err := s.Open(sealedPrefix + "abc"); err == nil {
		t.Fatalf("Open() on sealed value without key should fail")
	}
}

func TestAuditEntriesOrderedAndDeleted(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, nil)

	station := int64(7)
	meta := `{"type":"GENERIC","info":"x"}`
	for _, event := range []model.AuditEventType{model.EventTVLocked, model.EventTVUnlocked, model.EventAppStarted} {
		if _, err := repo.InsertAuditEntry(ctx, model.AuditEntry{
			Type:         event,
			StationID:    &station,
			DeviceID:     "TV-ABCDEFGH",
			Timestamp:    "2026-01-01T00:00:00Z",
			MetadataJSON: &meta,
		}); err != nil {
			t.Fatalf("InsertAuditEntry() error = %v", err)
		}
	}
	if _, err := repo.InsertAuditEntry(ctx, model.AuditEntry{Type: model.EventAppStarted, DeviceID: "TV-ABCDEFGH", Timestamp: "2026-01-01T00:00:01Z"}); err != nil {
		t.Fatalf("InsertAuditEntry() error = %v", err)
	}

	entries, err := repo.ListAuditEntries(ctx, 0)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Sequence <= entries[i-1].Sequence {
			t.Fatalf("entries not ordered by sequence: %+v", entries)
		}
	}
	if entries[0].Type != model.EventTVLocked || entries[0].StationID == nil || *entries[0].StationID != 7 {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[3].StationID != nil || entries[3].MetadataJSON != nil {
		t.Fatalf("entries[3] should have nil station and metadata, got %+v", entries[3])
	}

	if err := repo.DeleteAuditEntries(ctx, []int64{entries[0].Sequence, entries[2].Sequence}); err != nil {
		t.Fatalf("DeleteAuditEntries() error = %v", err)
	}
	count, err := repo.CountAuditEntries(ctx)
	if err != nil {
		t.Fatalf("CountAuditEntries() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("CountAuditEntries() = %d, want 2", count)
	}
	limited, err := repo.ListAuditEntries(ctx, 1)
	if err != nil {
		t.Fatalf("ListAuditEntries(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].Sequence != entries[1].Sequence {
		t.Fatalf("ListAuditEntries(1) = %+v, want sequence %d", limited, entries[1].Sequence)
	}
}
