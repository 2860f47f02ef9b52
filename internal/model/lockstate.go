package model

// LockKind discriminates LockState.
type LockKind string

const (
	LockUnpaired    LockKind = "UNPAIRED"
	LockLocked      LockKind = "LOCKED"
	LockUnlocked    LockKind = "UNLOCKED"
	LockGracePeriod LockKind = "GRACE_PERIOD"
)

// LockReason explains a Locked state.
type LockReason string

const (
	ReasonNetworkFailure    LockReason = "NETWORK_FAILURE"
	ReasonSessionStopped    LockReason = "SESSION_STOPPED"
	ReasonSessionPaused     LockReason = "SESSION_PAUSED"
	ReasonSessionNotStarted LockReason = "SESSION_NOT_STARTED"
	ReasonSessionNotActive  LockReason = "SESSION_NOT_ACTIVE"
	ReasonTokenInvalid      LockReason = "TOKEN_INVALID"
	ReasonFeatureDisabled   LockReason = "FEATURE_DISABLED"
	ReasonRateLimited       LockReason = "RATE_LIMITED"
	ReasonAppRestart        LockReason = "APP_RESTART"
)

// DisplayText is the operator-facing label for a reason.
func (r LockReason) DisplayText() string {
	switch r {
	case ReasonNetworkFailure:
		return "Network Unavailable"
	case ReasonSessionStopped:
		return "Session Stopped"
	case ReasonSessionPaused:
		return "Session Paused"
	case ReasonSessionNotStarted:
		return "Session Not Started"
	case ReasonSessionNotActive:
		return "Session Not Active"
	case ReasonTokenInvalid:
		return "Authorization Error"
	case ReasonFeatureDisabled:
		return "Feature Disabled"
	case ReasonRateLimited:
		return "Please Wait"
	case ReasonAppRestart:
		return "System Restarted"
	default:
		return string(r)
	}
}

// LockState is the terminal's lock state. Only the fields relevant to Kind are
// set, so two states compare equal with == exactly when they render the same.
type LockState struct {
	Kind             LockKind   `json:"kind"`
	Reason           LockReason `json:"reason,omitempty"`
	ShopName         string     `json:"shop_name,omitempty"`
	StationName      string     `json:"station_name,omitempty"`
	SecondsRemaining int        `json:"seconds_remaining,omitempty"`
}

func Unpaired() LockState { return LockState{Kind: LockUnpaired} }

func Locked(reason LockReason, shopName, stationName string) LockState {
	return LockState{Kind: LockLocked, Reason: reason, ShopName: shopName, StationName: stationName}
}

func Unlocked(shopName, stationName string) LockState {
	return LockState{Kind: LockUnlocked, ShopName: shopName, StationName: stationName}
}

func GracePeriod(secondsRemaining int, shopName, stationName string) LockState {
	return LockState{
		Kind:             LockGracePeriod,
		SecondsRemaining: secondsRemaining,
		ShopName:         shopName,
		StationName:      stationName,
	}
}

func (s LockState) IsLocked() bool { return s.Kind == LockLocked }
