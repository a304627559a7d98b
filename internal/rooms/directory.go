package rooms

import (
	"fmt"
	"sync"

	"roombook/internal/models"
)

// Directory indexes rooms by id and by canonical name.
type Directory struct {
	mu      sync.RWMutex
	aliases *AliasTable
	rooms   []*models.Room
	byID    map[int64]*models.Room
	byKey   map[string]*models.Room
}

func NewDirectory(aliases *AliasTable) *Directory {
	return &Directory{
		aliases: aliases,
		byID:    make(map[int64]*models.Room),
		byKey:   make(map[string]*models.Room),
	}
}

// Load replaces the directory contents. Names must be unique after normalization.
func (d *Directory) Load(rooms []*models.Room) error {
	byID := make(map[int64]*models.Room, len(rooms))
	byKey := make(map[string]*models.Room, len(rooms))
	for _, r := range rooms {
		key := Normalize(r.Name)
		if key == "" {
			return fmt.Errorf("room %d has an empty name", r.ID)
		}
		if other, ok := byKey[key]; ok {
			return fmt.Errorf("rooms %d and %d share the name %q", other.ID, r.ID, r.Name)
		}
		if _, ok := byID[r.ID]; ok {
			return fmt.Errorf("duplicate room id %d", r.ID)
		}
		byID[r.ID] = r
		byKey[key] = r
	}

	d.mu.Lock()
	d.rooms = rooms
	d.byID = byID
	d.byKey = byKey
	d.mu.Unlock()
	return nil
}

// Rooms returns the rooms in load order.
func (d *Directory) Rooms() []*models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}

// ActiveRooms returns the bookable rooms in load order.
func (d *Directory) ActiveRooms() []*models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

func (d *Directory) FindByID(id int64) (*models.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrRoomNotFound, id)
	}
	return r, nil
}

// FindByName resolves a free-text name through the alias table.
func (d *Directory) FindByName(name string) (*models.Room, error) {
	key := d.aliases.Resolve(name)
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, name)
	}
	return r, nil
}
