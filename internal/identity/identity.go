// Package identity owns the device record: the stable device id and the
// pairing credentials issued by the authority.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"sync"

	"github.com/micro-ha/kiosk-lock/internal/model"
	"github.com/micro-ha/kiosk-lock/internal/watch"
)

const (
	deviceIDPrefix = "TV-"
	deviceIDLength = 8
	base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var ErrNotPaired = errors.New("device is not paired")

// Store is the durable key-value capability the record is persisted in.
type Store interface {
	LoadValues(ctx context.Context) (map[string]string, error)
	ApplyValues(ctx context.Context, puts map[string]string, removes []string) error
}

// Pairing is the credential set returned by a successful pairing exchange.
type Pairing struct {
	DeviceID    string
	ShopID      int64
	StationID   int64
	ShopName    string
	StationName string
	Token       string
}

type Service struct {
	store  Store
	logger *slog.Logger
	random io.Reader

	mu     sync.Mutex
	record *watch.Value[model.DeviceRecord]
}

// New loads the persisted record from store.
func New(ctx context.Context, store Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	values, err := store.LoadValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device record: %w", err)
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "identity"),
		random: rand.Reader,
		record: watch.NewValue(recordFromValues(values)),
	}, nil
}

func (s *Service) Current() model.DeviceRecord {
	return s.record.Load()
}

func (s *Service) IsPaired() bool {
	return s.record.Load().IsPaired
}

// Token returns the pairing token, or false when the device holds none.
func (s *Service) Token() (string, bool) {
	rec := s.record.Load()
	if !rec.HasToken() {
		return "", false
	}
	return rec.Token, true
}

// Subscribe streams the current record followed by every change.
func (s *Service) Subscribe() *watch.Subscription[model.DeviceRecord] {
	return s.record.Subscribe()
}

// GetOrCreateDeviceID returns the stored device id, minting and persisting a
// new one when none exists.
func (s *Service) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record.Load()
	if rec.DeviceID != "" {
		return rec.DeviceID, nil
	}
	id, err := newDeviceID(s.random)
	if err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	if err := s.store.ApplyValues(ctx, map[string]string{model.KeyDeviceID: id}, nil); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	rec.DeviceID = id
	s.record.Set(rec)
	s.logger.Info("device id created", "device_id", id)
	return id, nil
}

// Save persists a full pairing in one batch and marks the device paired.
func (s *Service) Save(ctx context.Context, p Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record.Load()
	if p.DeviceID != "" {
		rec.DeviceID = p.DeviceID
	}
	rec.IsPaired = true
	rec.ShopID = p.ShopID
	rec.StationID = p.StationID
	rec.ShopName = p.ShopName
	rec.StationName = p.StationName
	rec.Token = p.Token

	puts := map[string]string{
		model.KeyDeviceID:    rec.DeviceID,
		model.KeyShopID:      strconv.FormatInt(rec.ShopID, 10),
		model.KeyStationID:   strconv.FormatInt(rec.StationID, 10),
		model.KeyShopName:    rec.ShopName,
		model.KeyStationName: rec.StationName,
		model.KeyToken:       rec.Token,
		model.KeyIsPaired:    "true",
	}
	if err := s.store.ApplyValues(ctx, puts, nil); err != nil {
		return fmt.Errorf("persist pairing: %w", err)
	}
	s.record.Set(rec)
	s.logger.Info("device paired", "device_id", rec.DeviceID, "station_id", rec.StationID)
	return nil
}

// UpdateNames refreshes the display names of a paired device. Token and
// pairing flag are untouched; unchanged names are not rewritten.
func (s *Service) UpdateNames(ctx context.Context, shopName, stationName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record.Load()
	if !rec.IsPaired {
		return ErrNotPaired
	}
	if rec.ShopName == shopName && rec.StationName == stationName {
		return nil
	}
	puts := map[string]string{
		model.KeyShopName:    shopName,
		model.KeyStationName: stationName,
	}
	if err := s.store.ApplyValues(ctx, puts, nil); err != nil {
		return fmt.Errorf("persist names: %w", err)
	}
	rec.ShopName = shopName
	rec.StationName = stationName
	s.record.Set(rec)
	return nil
}

// Clear drops the pairing and the device id. The next GetOrCreateDeviceID
// mints a fresh id.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removes := []string{
		model.KeyDeviceID,
		model.KeyShopID,
		model.KeyStationID,
		model.KeyShopName,
		model.KeyStationName,
		model.KeyToken,
	}
	if err := s.store.ApplyValues(ctx, map[string]string{model.KeyIsPaired: "false"}, removes); err != nil {
		return fmt.Errorf("clear device record: %w", err)
	}
	s.record.Set(model.DeviceRecord{})
	s.logger.Warn("device record cleared")
	return nil
}

func newDeviceID(r io.Reader) (string, error) {
	buf := make([]byte, deviceIDLength)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := range buf {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", err
		}
		buf[i] = base36Alphabet[n.Int64()]
	}
	return deviceIDPrefix + string(buf), nil
}

func recordFromValues(values map[string]string) model.DeviceRecord {
	rec := model.DeviceRecord{
		DeviceID:    values[model.KeyDeviceID],
		ShopName:    values[model.KeyShopName],
		StationName: values[model.KeyStationName],
		Token:       values[model.KeyToken],
	}
	rec.IsPaired, _ = strconv.ParseBool(values[model.KeyIsPaired])
	rec.ShopID, _ = strconv.ParseInt(values[model.KeyShopID], 10, 64)
	rec.StationID, _ = strconv.ParseInt(values[model.KeyStationID], 10, 64)
	return rec
}
