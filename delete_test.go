package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/healthsync/internal/platform"
	"github.com/tonimelisma/healthsync/internal/record"
)

func TestCollectDeleteItems(t *testing.T) {
	records := []record.Record{
		&record.CBG{Base: record.Base{ID: "r-1", Origin: &record.Origin{ID: "o-1"}}},
		&record.SMBG{Base: record.Base{ID: "r-2"}},
	}

	items, err := collectDeleteItems(records, []string{"r-3"}, []string{"o-4"})
	require.NoError(t, err)

	assert.Equal(t, []platform.DeleteItem{
		{OriginID: "o-1"},
		{ID: "r-2"},
		{ID: "r-3"},
		{OriginID: "o-4"},
	}, items)
}

func TestCollectDeleteItems_Errors(t *testing.T) {
	_, err := collectDeleteItems([]record.Record{&record.CBG{}, &record.CBG{}}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, platform.ErrNoDeleteIdentity)
	assert.Contains(t, err.Error(), "record 0")

	_, err = collectDeleteItems(nil, []string{""}, nil)
	assert.ErrorIs(t, err, platform.ErrNoDeleteIdentity)

	_, err = collectDeleteItems(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to delete")
}
