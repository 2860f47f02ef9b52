package identity

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/micro-ha/kiosk-lock/internal/model"
	"github.com/micro-ha/kiosk-lock/internal/storage"
)

var deviceIDPattern = regexp.MustCompile(`^TV-[0-9A-Z]{8}$`)

func newTestService(t *testing.T) (*Service, *storage.Repository) {
	t.Helper()
	repo, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "kiosk.db"), nil, nil)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	svc, err := New(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc, repo
}

type failingStore struct{}

func (failingStore) LoadValues(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (failingStore) ApplyValues(context.Context, map[string]string, []string) error {
	return errors.New("disk full")
}

func TestGetOrCreateDeviceIDIsStable(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	first, err := svc.GetOrCreateDeviceID(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateDeviceID() error = %v", err)
	}
	if !deviceIDPattern.MatchString(first) {
		t.Fatalf("GetOrCreateDeviceID() = %q, want TV- plus 8 base36 chars", first)
	}
	second, err := svc.GetOrCreateDeviceID(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateDeviceID() error = %v", err)
	}
	if second != first {
		t.Fatalf("GetOrCreateDeviceID() = %q, want %q", second, first)
	}

	reopened, err := New(ctx, repo, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := reopened.Current().DeviceID; got != first {
		t.Fatalf("reloaded device id = %q, want %q", got, first)
	}
}

func TestSavePersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	sub := svc.Subscribe()
	defer sub.Close()
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	initial, err := sub.Next(waitCtx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if initial.IsPaired {
		t.Fatalf("initial record should be unpaired")
	}

	if err := svc.Save(ctx, Pairing{
		DeviceID:    "TV-AAAA0000",
		ShopID:      3,
		StationID:   42,
		ShopName:    "Arcade",
		StationName: "Bay 4",
		Token:       "tok",
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	published, err := sub.Next(waitCtx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !published.IsPaired || published.Token != "tok" || published.StationID != 42 {
		t.Fatalf("published record = %+v", published)
	}

	reopened, err := New(ctx, repo, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got := reopened.Current()
	want := model.DeviceRecord{
		DeviceID:    "TV-AAAA0000",
		IsPaired:    true,
		ShopID:      3,
		StationID:   42,
		ShopName:    "Arcade",
		StationName: "Bay 4",
		Token:       "tok",
	}
	if got != want {
		t.Fatalf("reloaded record = %+v, want %+v", got, want)
	}
	if token, ok := reopened.Token(); !ok || token != "tok" {
		t.Fatalf("Token() = %q, %v", token, ok)
	}
}

func TestUpdateNamesKeepsToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if err := svc.UpdateNames(ctx, "a", "b"); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("UpdateNames() on unpaired error = %v, want ErrNotPaired", err)
	}
	if err := svc.Save(ctx, Pairing{DeviceID: "TV-AAAA0000", StationID: 1, StationName: "Old", Token: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := svc.UpdateNames(ctx, "Shop", "New"); err != nil {
		t.Fatalf("UpdateNames() error = %v", err)
	}
	rec := svc.Current()
	if rec.ShopName != "Shop" || rec.StationName != "New" || rec.Token != "tok" || !rec.IsPaired {
		t.Fatalf("record after UpdateNames = %+v", rec)
	}
}

func TestClearRemovesPairingAndDeviceID(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	if err := svc.Save(ctx, Pairing{DeviceID: "TV-AAAA0000", StationID: 9, Token: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if svc.IsPaired() {
		t.Fatalf("IsPaired() = true after Clear")
	}
	if _, ok := svc.Token(); ok {
		t.Fatalf("Token() still present after Clear")
	}

	values, err := repo.LoadValues(ctx)
	if err != nil {
		t.Fatalf("LoadValues() error = %v", err)
	}
	if _, ok := values[model.KeyToken]; ok {
		t.Fatalf("token still persisted: %v", values)
	}
	if values[model.KeyIsPaired] != "false" {
		t.Fatalf("is_paired = %q, want false", values[model.KeyIsPaired])
	}

	id, err := svc.GetOrCreateDeviceID(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateDeviceID() error = %v", err)
	}
	if id == "TV-AAAA0000" {
		t.Fatalf("device id was not regenerated after Clear")
	}
}

func TestPersistenceFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, failingStore{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := svc.GetOrCreateDeviceID(ctx); err == nil {
		t.Fatalf("GetOrCreateDeviceID() should surface store errors")
	}
	if err := svc.Save(ctx, Pairing{Token: "tok"}); err == nil {
		t.Fatalf("Save() should surface store errors")
	}
	if svc.IsPaired() {
		t.Fatalf("failed Save must not publish a paired record")
	}
	if err := svc.Clear(ctx); err == nil {
		t.Fatalf("Clear() should surface store errors")
	}
}
