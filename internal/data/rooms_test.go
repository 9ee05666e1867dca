package data

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRoomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	body := `
- name: lol
  room_id: 288016
  alias: [LPL, " league "]
- name: dota2
  room_id: 9999
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadRoomTable(path)
	if err != nil {
		t.Fatalf("LoadRoomTable: %v", err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("count = %d", tbl.Count())
	}
	for _, name := range []string{"lol", "LOL", "lpl", "League"} {
		e := tbl.Get(name)
		if e == nil || e.RoomID != 288016 {
			t.Fatalf("Get(%q) = %+v", name, e)
		}
	}
	if tbl.Get("csgo") != nil {
		t.Fatal("unknown name resolved")
	}
}

func TestNewRoomTableRejectsConflicts(t *testing.T) {
	_, err := NewRoomTable([]RoomEntry{
		{Name: "a", RoomID: 1},
		{Name: "b", RoomID: 2, Alias: []string{"A"}},
	})
	if err == nil {
		t.Fatal("conflicting alias accepted")
	}
	if _, err := NewRoomTable([]RoomEntry{{Name: "z"}}); err == nil {
		t.Fatal("missing room_id accepted")
	}
}
