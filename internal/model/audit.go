package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditEventType names a telemetry event sent to the authority.
type AuditEventType string

const (
	EventAppStarted         AuditEventType = "APP_STARTED"
	EventDevicePaired       AuditEventType = "DEVICE_PAIRED"
	EventTVLocked           AuditEventType = "TV_LOCKED"
	EventTVUnlocked         AuditEventType = "TV_UNLOCKED"
	EventNetworkLost        AuditEventType = "NETWORK_LOST"
	EventNetworkRestored    AuditEventType = "NETWORK_RESTORED"
	EventGracePeriodStarted AuditEventType = "GRACE_PERIOD_STARTED"
	EventGracePeriodExpired AuditEventType = "GRACE_PERIOD_EXPIRED"
)

// AuditEvent is one telemetry record. StationID is nil when the device has no
// station yet.
type AuditEvent struct {
	Type      AuditEventType
	StationID *int64
	DeviceID  string
	Timestamp time.Time
	Metadata  AuditMetadata
}

// TimestampString renders Timestamp as ISO-8601 UTC.
func (e AuditEvent) TimestampString() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano)
}

// AuditEntry is an AuditEvent as stored in the queue. Metadata is kept raw so
// a row that no longer decodes can still be delivered without it.
type AuditEntry struct {
	Sequence     int64          `json:"sequence"`
	Type         AuditEventType `json:"type"`
	StationID    *int64         `json:"station_id"`
	DeviceID     string         `json:"device_id"`
	Timestamp    string         `json:"timestamp"`
	MetadataJSON *string        `json:"metadata_json,omitempty"`
}

// AuditMetadata is the closed set of typed metadata payloads.
type AuditMetadata interface {
	metadataType() string
}

type NetworkLostMetadata struct {
	RetryCount int `json:"retryCount"`
}

type GracePeriodExpiredMetadata struct {
	DurationSeconds int `json:"durationSeconds"`
}

type ManualLockMetadata struct {
	Reason string `json:"reason"`
}

type AppRestartedMetadata struct {
	Boot bool `json:"boot"`
}

type DevicePairedMetadata struct {
	ShopName    string `json:"shopName"`
	StationName string `json:"stationName"`
}

type GenericMetadata struct {
	Info map[string]string `json:"info"`
}

func (NetworkLostMetadata) metadataType() string        { return "NETWORK_LOST" }
func (GracePeriodExpiredMetadata) metadataType() string { return "GRACE_EXPIRED" }
func (ManualLockMetadata) metadataType() string         { return "MANUAL_LOCK" }
func (AppRestartedMetadata) metadataType() string       { return "APP_RESTARTED" }
func (DevicePairedMetadata) metadataType() string       { return "DEVICE_PAIRED" }
func (GenericMetadata) metadataType() string            { return "GENERIC" }

// EncodeMetadata renders metadata as a JSON object tagged with "type".
func EncodeMetadata(m AuditMetadata) (json.RawMessage, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(m.metadataType())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// DecodeMetadata parses a tagged metadata object.
func DecodeMetadata(raw []byte) (AuditMetadata, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}

	var target AuditMetadata
	switch envelope.Type {
	case "NETWORK_LOST":
		var m NetworkLostMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	case "GRACE_EXPIRED":
		var m GracePeriodExpiredMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	case "MANUAL_LOCK":
		var m ManualLockMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	case "APP_RESTARTED":
		var m AppRestartedMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	case "DEVICE_PAIRED":
		var m DevicePairedMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	case "GENERIC":
		var m GenericMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		target = m
	default:
		return nil, fmt.Errorf("unknown metadata type %q", envelope.Type)
	}
	return target, nil
}
