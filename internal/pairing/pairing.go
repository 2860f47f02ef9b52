// Package pairing binds the device to a station and handles operator resets.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/micro-ha/kiosk-lock/internal/gateway"
	"github.com/micro-ha/kiosk-lock/internal/identity"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

const defaultShopName = "Game Shop"

var ErrEmptyStationCode = errors.New("station code is required")

type Identity interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
	Save(ctx context.Context, p identity.Pairing) error
	Clear(ctx context.Context) error
	Current() model.DeviceRecord
}

type Pairer interface {
	Pair(ctx context.Context, stationCode, deviceID string) (gateway.PairResult, error)
}

type Recorder interface {
	Record(ctx context.Context, event model.AuditEvent) error
}

// Refresher is notified after the pairing changes so the next poll runs
// immediately.
type Refresher interface {
	TriggerRefresh()
}

type Service struct {
	identity  Identity
	pairer    Pairer
	recorder  Recorder
	refresher Refresher
	logger    *slog.Logger
}

func New(ident Identity, pairer Pairer, recorder Recorder, refresher Refresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identity:  ident,
		pairer:    pairer,
		recorder:  recorder,
		refresher: refresher,
		logger:    logger.With("component", "pairing"),
	}
}

// Pair exchanges stationCode for credentials and stores them. When the
// authority reports a device id collision the local id is discarded and the
// exchange is retried once with a fresh id.
func (s *Service) Pair(ctx context.Context, stationCode string) (model.DeviceRecord, error) {
	code := strings.TrimSpace(stationCode)
	if code == "" {
		return model.DeviceRecord{}, ErrEmptyStationCode
	}

	deviceID, result, err := s.exchange(ctx, code)
	if errors.Is(err, gateway.ErrPairCollision) {
		s.logger.Warn("device id collision, regenerating", "device_id", deviceID)
		if err := s.identity.Clear(ctx); err != nil {
			return model.DeviceRecord{}, fmt.Errorf("reset device id: %w", err)
		}
		deviceID, result, err = s.exchange(ctx, code)
	}
	if err != nil {
		return model.DeviceRecord{}, err
	}

	pairing := identity.Pairing{
		DeviceID:    result.DeviceID,
		ShopID:      result.ShopID,
		StationID:   result.StationID,
		ShopName:    result.ShopName,
		StationName: result.StationName,
		Token:       result.Token,
	}
	if pairing.DeviceID == "" {
		pairing.DeviceID = deviceID
	}
	if pairing.ShopName == "" {
		pairing.ShopName = defaultShopName
	}
	if err := s.identity.Save(ctx, pairing); err != nil {
		return model.DeviceRecord{}, err
	}

	stationID := pairing.StationID
	if err := s.recorder.Record(ctx, model.AuditEvent{
		Type:      model.EventDevicePaired,
		StationID: &stationID,
		DeviceID:  pairing.DeviceID,
		Metadata: model.DevicePairedMetadata{
			ShopName:    pairing.ShopName,
			StationName: pairing.StationName,
		},
	}); err != nil {
		s.logger.Error("record pairing failed", "err", err)
	}

	s.refresh()
	return s.identity.Current(), nil
}

// Unpair drops the pairing as if the authority had revoked the token.
func (s *Service) Unpair(ctx context.Context) error {
	if err := s.identity.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("device unpaired by operator")
	s.refresh()
	return nil
}

func (s *Service) exchange(ctx context.Context, code string) (string, gateway.PairResult, error) {
	deviceID, err := s.identity.GetOrCreateDeviceID(ctx)
	if err != nil {
		return "", gateway.PairResult{}, err
	}
	result, err := s.pairer.Pair(ctx, code, deviceID)
	return deviceID, result, err
}

func (s *Service) refresh() {
	if s.refresher != nil {
		s.refresher.TriggerRefresh()
	}
}
