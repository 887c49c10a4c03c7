package platform

import (
	"fmt"
)

// Deduplicator names a server-side strategy for reconciling duplicate or
// overlapping records from the same origin.
type Deduplicator int

// Known deduplicators. DeduplicatorUnknown is the zero value and matches no
// server strategy.
const (
	DeduplicatorUnknown Deduplicator = iota
	DeduplicatorDataSetDeleteOrigin
	DeduplicatorDeviceDeactivateHash
	DeduplicatorDeviceTruncateDataSet
	DeduplicatorNone
)

type deduplicatorNames struct {
	canonical string
	aliases   []string
}

var deduplicators = map[Deduplicator]deduplicatorNames{
	DeduplicatorDataSetDeleteOrigin: {
		canonical: "org.tidepool.deduplicator.dataset.delete.origin",
		aliases:   []string{"org.tidepool.continuous.origin"},
	},
	DeduplicatorDeviceDeactivateHash: {
		canonical: "org.tidepool.deduplicator.device.deactivate.hash",
		aliases:   []string{"org.tidepool.hash-deactivate-old"},
	},
	DeduplicatorDeviceTruncateDataSet: {
		canonical: "org.tidepool.deduplicator.device.truncate.dataset",
		aliases:   []string{"org.tidepool.truncate"},
	},
	DeduplicatorNone: {
		canonical: "org.tidepool.deduplicator.none",
		aliases:   []string{"org.tidepool.continuous"},
	},
}

// deduplicatorByName maps canonical names and deprecated aliases alike.
var deduplicatorByName = func() map[string]Deduplicator {
	m := make(map[string]Deduplicator)

	for d, names := range deduplicators {
		m[names.canonical] = d

		for _, alias := range names.aliases {
			m[alias] = d
		}
	}

	return m
}()

// ParseDeduplicator resolves a canonical name or a deprecated alias.
func ParseDeduplicator(name string) (Deduplicator, error) {
	d, ok := deduplicatorByName[name]
	if !ok {
		return DeduplicatorUnknown, fmt.Errorf("platform: unknown deduplicator %q", name)
	}

	return d, nil
}

// String returns the canonical name; aliases are never emitted.
func (d Deduplicator) String() string {
	return deduplicators[d].canonical
}

// Aliases returns the deprecated names accepted for d.
func (d Deduplicator) Aliases() []string {
	return append([]string(nil), deduplicators[d].aliases...)
}

// MarshalText implements encoding.TextMarshaler.
func (d Deduplicator) MarshalText() ([]byte, error) {
	if d == DeduplicatorUnknown {
		return nil, fmt.Errorf("platform: cannot encode unknown deduplicator")
	}

	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Deduplicator) UnmarshalText(text []byte) error {
	parsed, err := ParseDeduplicator(string(text))
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}
