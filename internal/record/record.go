// Package record provides the typed health-data records uploaded to the
// platform and the codec that maps them to and from JSON objects. Decoding
// is dispatched once, here, on the "type" discriminator field; the rest of
// the module treats records as opaque Encode/Decode capabilities.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Discriminator values understood by the platform.
const (
	TypeCBG   = "cbg"
	TypeSMBG  = "smbg"
	TypeBolus = "bolus"
	TypeFood  = "food"
)

// Glucose units.
const (
	UnitsMgdL  = "mg/dL"
	UnitsMmolL = "mmol/L"
)

// Record is any typed health datum the codec can encode.
type Record interface {
	// Type returns the discriminator written to the "type" field.
	Type() string
	// RecordID returns the server-side id, or "" if the record has none.
	RecordID() string
	// OriginID returns the provenance id, or "" if the record has no origin.
	OriginID() string
}

// Origin identifies the device or service a record came from.
type Origin struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Base holds the fields common to every record type.
type Base struct {
	ID       string         `json:"id,omitempty"`
	Time     time.Time      `json:"time"`
	DeviceID string         `json:"deviceId,omitempty"`
	Origin   *Origin        `json:"origin,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// RecordID implements Record.
func (b *Base) RecordID() string {
	return b.ID
}

// OriginID implements Record.
func (b *Base) OriginID() string {
	if b.Origin == nil {
		return ""
	}

	return b.Origin.ID
}

// SetOrigin replaces the record's provenance.
func (b *Base) SetOrigin(o *Origin) {
	b.Origin = o
}

// originSetter is implemented by every record that embeds Base.
type originSetter interface {
	SetOrigin(o *Origin)
}

// EnsureOrigin gives r a freshly generated origin id when it has none, so
// the record can later be deleted by origin. It reports whether an origin
// was assigned. Records that do not embed Base are left untouched.
func EnsureOrigin(r Record, name, version string) bool {
	if r.OriginID() != "" {
		return false
	}

	s, ok := r.(originSetter)
	if !ok {
		return false
	}

	s.SetOrigin(&Origin{
		ID:      uuid.NewString(),
		Name:    name,
		Version: version,
		Type:    "application",
	})

	return true
}

// CBG is a continuous glucose monitor reading.
type CBG struct {
	Base
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

// Type implements Record.
func (*CBG) Type() string { return TypeCBG }

// SMBG is a fingerstick blood glucose reading.
type SMBG struct {
	Base
	SubType string  `json:"subType,omitempty"`
	Units   string  `json:"units"`
	Value   float64 `json:"value"`
}

// Type implements Record.
func (*SMBG) Type() string { return TypeSMBG }

// Bolus is a discrete insulin delivery.
type Bolus struct {
	Base
	SubType  string   `json:"subType"`
	Normal   *float64 `json:"normal,omitempty"`
	Extended *float64 `json:"extended,omitempty"`
	Duration *int64   `json:"duration,omitempty"` // milliseconds
}

// Type implements Record.
func (*Bolus) Type() string { return TypeBolus }

// Carbohydrate is the carbohydrate content of a food entry.
type Carbohydrate struct {
	Net   float64 `json:"net"`
	Units string  `json:"units"`
}

// Nutrition groups the nutrient facets of a food entry.
type Nutrition struct {
	Carbohydrate *Carbohydrate `json:"carbohydrate,omitempty"`
}

// Food is a logged meal or snack.
type Food struct {
	Base
	Name      string     `json:"name,omitempty"`
	Nutrition *Nutrition `json:"nutrition,omitempty"`
}

// Type implements Record.
func (*Food) Type() string { return TypeFood }
