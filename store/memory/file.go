package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ticketchain-backend/models"
)

type snapshot struct {
	Users          []models.User           `json:"users"`
	Events         []models.Event          `json:"events"`
	Participations []models.Participation  `json:"participations"`
	CreditLog      []models.CreditLogEntry `json:"credit_log"`
	Feedback       []models.Feedback       `json:"feedback"`
}

// NewFile opens (or creates) a JSON snapshot at path. Every committed
// transaction rewrites the snapshot through a temp file and rename, so the
// file on disk always holds a whole committed state.
func NewFile(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	st, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	s := &Store{state: st}
	s.persist = func(next *state) error { return writeSnapshot(path, next) }
	return s, nil
}

func loadSnapshot(path string) (*state, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newState(), nil
	}
	if err != nil {
		return nil, err
	}
	st := newState()
	if len(raw) == 0 {
		return st, nil
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, u := range snap.Users {
		st.Users[u.ID] = u
		st.Wallets[u.WalletAddress] = u.ID
	}
	for _, e := range snap.Events {
		st.Events[e.ID] = e
	}
	for _, p := range snap.Participations {
		st.Participations[participationKey(p.EventID, p.UserID)] = p
	}
	st.CreditLog = snap.CreditLog
	st.Feedback = snap.Feedback
	return st, nil
}

func writeSnapshot(path string, st *state) error {
	snap := snapshot{
		Users:          make([]models.User, 0, len(st.Users)),
		Events:         make([]models.Event, 0, len(st.Events)),
		Participations: make([]models.Participation, 0, len(st.Participations)),
		CreditLog:      st.CreditLog,
		Feedback:       st.Feedback,
	}
	for _, u := range st.Users {
		snap.Users = append(snap.Users, u)
	}
	for _, e := range st.Events {
		snap.Events = append(snap.Events, e)
	}
	for _, p := range st.Participations {
		snap.Participations = append(snap.Participations, p)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].ID < snap.Events[j].ID })
	sort.Slice(snap.Participations, func(i, j int) bool { return snap.Participations[i].ID < snap.Participations[j].ID })

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
