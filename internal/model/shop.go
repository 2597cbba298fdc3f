package model

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type GeocodeResult struct {
	Coordinates
	DisplayName string `json:"displayName,omitempty"`
}

// ShopRecord is one persisted truck shop. CreatedAt is RFC3339 UTC, Services
// is a comma-joined list of service tags, and Coords is nil when the address
// could not be geocoded at save time.
type ShopRecord struct {
	CreatedAt string       `json:"createdAt"`
	Name      string       `json:"name"`
	Address   string       `json:"address"`
	City      string       `json:"city"`
	State     string       `json:"state"`
	Phone     string       `json:"phone"`
	Contact   string       `json:"contact"`
	Staff     StaffType    `json:"staff"`
	Services  string       `json:"services"`
	Notes     string       `json:"notes"`
	Coords    *Coordinates `json:"coords,omitempty"`
}
