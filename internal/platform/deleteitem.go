package platform

import (
	"encoding/json"
	"errors"

	"github.com/tonimelisma/healthsync/internal/record"
)

// ErrNoDeleteIdentity is returned when a DeleteItem has neither an id nor an
// origin id.
var ErrNoDeleteIdentity = errors.New("platform: delete item needs an id or origin id")

// DeleteItem addresses one server record for deletion, either by its server
// id or by its origin id.
type DeleteItem struct {
	ID       string
	OriginID string
}

// NewDeleteItem addresses a record by server id.
func NewDeleteItem(id string) (DeleteItem, error) {
	if id == "" {
		return DeleteItem{}, ErrNoDeleteIdentity
	}

	return DeleteItem{ID: id}, nil
}

// NewOriginDeleteItem addresses a record by origin id.
func NewOriginDeleteItem(originID string) (DeleteItem, error) {
	if originID == "" {
		return DeleteItem{}, ErrNoDeleteIdentity
	}

	return DeleteItem{OriginID: originID}, nil
}

// DeleteItemFor derives a DeleteItem from an existing record. The origin id
// wins over the record's own id because it survives re-uploads.
func DeleteItemFor(r record.Record) (DeleteItem, error) {
	if r == nil {
		return DeleteItem{}, ErrNoDeleteIdentity
	}

	if origin := r.OriginID(); origin != "" {
		return DeleteItem{OriginID: origin}, nil
	}

	if id := r.RecordID(); id != "" {
		return DeleteItem{ID: id}, nil
	}

	return DeleteItem{}, ErrNoDeleteIdentity
}

type deleteItemJSON struct {
	ID     string            `json:"id,omitempty"`
	Origin *deleteItemOrigin `json:"origin,omitempty"`
}

type deleteItemOrigin struct {
	ID string `json:"id"`
}

// MarshalJSON encodes {"id":...} or {"origin":{"id":...}}.
func (d DeleteItem) MarshalJSON() ([]byte, error) {
	if d.ID == "" && d.OriginID == "" {
		return nil, ErrNoDeleteIdentity
	}

	out := deleteItemJSON{ID: d.ID}
	if d.OriginID != "" {
		out.ID = ""
		out.Origin = &deleteItemOrigin{ID: d.OriginID}
	}

	return json.Marshal(out)
}
