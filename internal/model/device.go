package model

// DeviceRecord is the persisted identity and pairing state of this terminal.
// Pairing fields are meaningful only while IsPaired is true.
type DeviceRecord struct {
	DeviceID    string `json:"device_id"`
	IsPaired    bool   `json:"is_paired"`
	ShopID      int64  `json:"shop_id"`
	StationID   int64  `json:"station_id"`
	ShopName    string `json:"shop_name"`
	StationName string `json:"station_name"`
	Token       string `json:"token"`
}

// HasToken reports whether the record carries a usable credential.
func (r DeviceRecord) HasToken() bool {
	return r.IsPaired && r.Token != ""
}

// Redacted returns a copy safe to expose outside the process.
func (r DeviceRecord) Redacted() DeviceRecord {
	if r.Token != "" {
		r.Token = "***"
	}
	return r
}

const (
	KeyDeviceID    = "device_id"
	KeyShopID      = "shop_id"
	KeyStationID   = "station_id"
	KeyShopName    = "shop_name"
	KeyStationName = "station_name"
	KeyToken       = "token"
	KeyIsPaired    = "is_paired"
)
