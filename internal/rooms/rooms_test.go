package rooms

import (
	"testing"

	"roombook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Phòng A", "phong a"},
		{"  phòng   HỌP 1 ", "phong hop 1"},
		{"Đà Nẵng", "da nang"},
		{"Конференц-зал", "конференц-зал"},
		{"Café", "cafe"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestAliasTable_Resolve(t *testing.T) {
	table := MustAliasTable(
		Alias{Pattern: "phòng họp 1", Canonical: "phòng 1"},
		Alias{Pattern: "phòng A", Canonical: "phòng A"},
		Alias{Pattern: "phong hop 1", Canonical: "phòng 2"},
	)
	assert.Equal(t, 3, table.Len())

	assert.Equal(t, "phong 1", table.Resolve("Phòng Họp 1"))
	// first entry wins over a later one with the same normalized pattern
	assert.Equal(t, "phong 1", table.Resolve("phong hop 1"))
	assert.Equal(t, "phong a", table.Resolve(" PHÒNG a "))
	assert.Equal(t, "phong b", table.Resolve("Phòng B"))

	var empty *AliasTable
	assert.Equal(t, "phong b", empty.Resolve("Phòng B"))
	assert.Equal(t, 0, empty.Len())
}

func TestNewAliasTable_Invalid(t *testing.T) {
	_, err := NewAliasTable([]Alias{{Pattern: " ", Canonical: "x"}})
	assert.Error(t, err)

	_, err = NewAliasTable([]Alias{{Pattern: "x", Canonical: ""}})
	assert.Error(t, err)

	assert.Panics(t, func() { MustAliasTable(Alias{}) })
}

func TestDirectory(t *testing.T) {
	dir := NewDirectory(MustAliasTable(Alias{Pattern: "phòng họp 1", Canonical: "phòng 1"}))
	rooms := []*models.Room{
		{ID: 1, Name: "Phòng A", Status: models.RoomStatusActive},
		{ID: 2, Name: "Phòng B", Status: models.RoomStatusMaintenance},
		{ID: 3, Name: "Phòng 1"},
	}
	require.NoError(t, dir.Load(rooms))

	t.Run("FindByName", func(t *testing.T) {
		r, err := dir.FindByName("phong a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), r.ID)

		r, err = dir.FindByName("Phòng họp 1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), r.ID)

		_, err = dir.FindByName("phòng Z")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("FindByID", func(t *testing.T) {
		r, err := dir.FindByID(2)
		require.NoError(t, err)
		assert.Equal(t, "Phòng B", r.Name)

		_, err = dir.FindByID(42)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("ActiveRooms", func(t *testing.T) {
		active := dir.ActiveRooms()
		require.Len(t, active, 2)
		assert.Equal(t, int64(1), active[0].ID)
		assert.Equal(t, int64(3), active[1].ID)
		assert.Len(t, dir.Rooms(), 3)
	})

	t.Run("DuplicateNames", func(t *testing.T) {
		err := dir.Load([]*models.Room{{ID: 1, Name: "Phòng A"}, {ID: 2, Name: "phong a"}})
		assert.Error(t, err)
		// previous contents survive a failed load
		_, err = dir.FindByID(3)
		assert.NoError(t, err)
	})
}
