package data

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoomEntry maps a room alias to its numeric id.
type RoomEntry struct {
	Name   string   `yaml:"name"`
	RoomID int      `yaml:"room_id"`
	Alias  []string `yaml:"alias"`
	Note   string   `yaml:"note"`
}

// RoomTable resolves room names without a network lookup. Names are
// matched case-insensitively.
type RoomTable struct {
	rooms map[string]*RoomEntry
	count int
}

// LoadRoomTable loads rooms.yaml.
func LoadRoomTable(path string) (*RoomTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read room list: %w", err)
	}
	var entries []RoomEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse room list: %w", err)
	}
	return NewRoomTable(entries)
}

// NewRoomTable indexes entries by name and every alias. A name claimed by
// two different rooms is an error.
func NewRoomTable(entries []RoomEntry) (*RoomTable, error) {
	t := &RoomTable{rooms: make(map[string]*RoomEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		if e.RoomID <= 0 {
			return nil, fmt.Errorf("room %q: invalid room_id %d", e.Name, e.RoomID)
		}
		for _, name := range append([]string{e.Name}, e.Alias...) {
			key := normalizeRoomName(name)
			if key == "" {
				continue
			}
			if prev, ok := t.rooms[key]; ok && prev.RoomID != e.RoomID {
				return nil, fmt.Errorf("room name %q maps to both %d and %d", name, prev.RoomID, e.RoomID)
			}
			t.rooms[key] = e
		}
	}
	t.count = len(entries)
	return t, nil
}

func normalizeRoomName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the entry for name, or nil if none.
func (t *RoomTable) Get(name string) *RoomEntry {
	return t.rooms[normalizeRoomName(name)]
}

// Count returns the number of rooms loaded.
func (t *RoomTable) Count() int {
	return t.count
}
