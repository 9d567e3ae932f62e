package aggregator

import (
	"context"
	"errors"
	"sync"

	"wisefido-vitals/internal/models"
)

var errDBDown = errors.New("db down")

// fakeStore 记录写入的行
type fakeStore struct {
	mu     sync.Mutex
	rows   []models.VitalsRow
	failOn map[string]bool // room_id
}

func (s *fakeStore) InsertVitals(ctx context.Context, row *models.VitalsRow) error {
	return s.insert(row, false)
}

func (s *fakeStore) InsertFallVitals(ctx context.Context, row *models.VitalsRow) error {
	return s.insert(row, true)
}

func (s *fakeStore) insert(row *models.VitalsRow, isFall bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[row.RoomID] {
		return errDBDown
	}
	r := *row
	r.IsFall = isFall
	s.rows = append(s.rows, r)
	return nil
}

func (s *fakeStore) byRoom(room string) []models.VitalsRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VitalsRow
	for _, r := range s.rows {
		if r.RoomID == room {
			out = append(out, r)
		}
	}
	return out
}

// fakeResolver 房间 → 住户，未知房间返回 "0"
type fakeResolver struct {
	patients map[string]string
	errOn    map[string]bool
}

func (r *fakeResolver) Resolve(ctx context.Context, roomID string) (string, error) {
	if r.errOn[roomID] {
		return "", errDBDown
	}
	if id, ok := r.patients[roomID]; ok {
		return id, nil
	}
	return "0", nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.FallEvent
	err    error
}

func (e *fakeEvents) PublishFallEvent(ctx context.Context, event *models.FallEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, *event)
	return nil
}
