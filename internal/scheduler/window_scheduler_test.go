package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wisefido-vitals/internal/aggregator"
	"wisefido-vitals/internal/consumer"
	"wisefido-vitals/internal/discovery"
	"wisefido-vitals/internal/journal"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (p *fakePublisher) last(topic string) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].topic == topic {
			return p.msgs[i], true
		}
	}
	return published{}, false
}

type fakeStore struct {
	mu   sync.Mutex
	rows []models.VitalsRow
}

func (s *fakeStore) InsertVitals(ctx context.Context, row *models.VitalsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *row)
	return nil
}

func (s *fakeStore) InsertFallVitals(ctx context.Context, row *models.VitalsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *row
	r.IsFall = true
	s.rows = append(s.rows, r)
	return nil
}

type fixedResolver string

func (r fixedResolver) Resolve(ctx context.Context, roomID string) (string, error) {
	return string(r), nil
}

type pipeline struct {
	clock     time.Time
	rooms     *state.RoomStateStore
	falls     *state.FallTracker
	window    *state.WindowAccumulator
	journal   *journal.Journal
	publisher *fakePublisher
	store     *fakeStore
	ingest    *consumer.MQTTConsumer
	scheduler *WindowScheduler
}

func newPipeline(t *testing.T) *pipeline {
	logger := zap.NewNop()
	j, err := journal.New(t.TempDir(), logger)
	require.NoError(t, err)

	p := &pipeline{
		clock:     time.Date(2026, 10, 16, 9, 16, 0, 0, time.UTC),
		rooms:     state.NewRoomStateStore(),
		window:    state.NewWindowAccumulator(),
		journal:   j,
		publisher: &fakePublisher{},
		store:     &fakeStore{},
	}
	now := func() time.Time { return p.clock }
	p.falls = state.NewFallTracker(now)

	devices := state.NewDeviceRegistry()
	announcer := discovery.NewAnnouncer(p.publisher, devices, "homeassistant", "wisefido/vitals", 1, logger)

	p.ingest = consumer.NewMQTTConsumer(
		consumer.Topics{Vitals: "sensors/vitals", Status: "sensors/status"},
		nil, p.rooms, p.falls, devices, announcer, j,
		consumer.Options{QoS: 1, Now: now},
		logger,
	)

	resolver := fixedResolver("p-1")
	persister := aggregator.NewPersister(p.window, resolver, p.store, now, logger)
	fallAgg := aggregator.NewFallAggregator(p.rooms, p.falls, resolver, p.store, nil, now, logger)

	p.scheduler = NewWindowScheduler(p.rooms, p.window, j, announcer, persister, fallAgg,
		Options{RetentionDays: 14, Now: now}, logger)
	return p
}

func (p *pipeline) vitals(t *testing.T, payload string) {
	require.NoError(t, p.ingest.HandleVitals("sensors/vitals", []byte(payload)))
}

func TestMinuteCycle_EndToEnd(t *testing.T) {
	p := newPipeline(t)
	p.vitals(t, `{"room_id":"ICU-1","device_id":"dev7","heart_rate":80,"breath_rate":18,"distance":120}`)

	p.scheduler.RunMinuteCycle()

	data, err := os.ReadFile(filepath.Join(p.journal.Dir(), "summaries", "ICU_1", "2026-10-16.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"t":"2026-10-16T09:16","avg_hr":80,"avg_rr":18,"last_distance":120,"samples":1}`, lines[0])

	msg, ok := p.publisher.last("wisefido/vitals/dev7/state")
	require.True(t, ok)
	assert.True(t, msg.retained)
	var st models.DeviceState
	require.NoError(t, json.Unmarshal(msg.payload, &st))
	assert.Equal(t, 80, *st.HeartRate)
	assert.Equal(t, 18, *st.BreathRate)
	assert.Equal(t, 120, *st.Distance)
	assert.Equal(t, "ICU_1", st.RoomID)
	assert.Equal(t, "dev7", st.DeviceID)

	heartbeat, err := os.ReadFile(filepath.Join(p.journal.Dir(), "heartbeat"))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16T09:16:00Z", strings.TrimSpace(string(heartbeat)))

	// 分钟窗口已重置，数据进入十五分钟累加器
	_, ok = p.rooms.Peek("ICU_1")
	assert.False(t, ok)
	assert.Equal(t, []string{"ICU_1"}, p.window.Rooms())
}

func TestMinuteCycle_RoomWithoutDeviceIsNotPublished(t *testing.T) {
	p := newPipeline(t)
	p.vitals(t, `{"room_id":"B","heart_rate":70}`)

	p.scheduler.RunMinuteCycle()

	for _, m := range p.publisher.msgs {
		assert.False(t, strings.HasSuffix(m.topic, "/state"), m.topic)
	}
	_, err := os.Stat(filepath.Join(p.journal.Dir(), "summaries", "B", "2026-10-16.jsonl"))
	assert.NoError(t, err)
}

func TestFifteenMinuteCycle_PersistsAverageOfAbsorbedMinutes(t *testing.T) {
	p := newPipeline(t)

	p.vitals(t, `{"room_id":"A","heart_rate":70,"breath_rate":16}`)
	p.vitals(t, `{"room_id":"A","heart_rate":72}`)
	p.scheduler.RunMinuteCycle()
	p.vitals(t, `{"room_id":"A","heart_rate":74,"distance":95}`)
	p.scheduler.RunMinuteCycle()
	p.scheduler.RunMinuteCycle()

	require.NoError(t, p.scheduler.RunFifteenMinuteCycle(context.Background()))

	require.Len(t, p.store.rows, 1)
	row := p.store.rows[0]
	assert.Equal(t, "p-1", row.PatientID)
	assert.Equal(t, 72, *row.HeartRate)
	assert.Equal(t, 16, *row.BreathRate)
	assert.Equal(t, 95, *row.Distance)
	assert.False(t, row.IsFall)
	assert.Empty(t, p.window.Rooms())

	// 下一个周期没有新数据，不写行
	require.NoError(t, p.scheduler.RunFifteenMinuteCycle(context.Background()))
	assert.Len(t, p.store.rows, 1)
}

func TestFallCycle_UsesLiveWindow(t *testing.T) {
	p := newPipeline(t)
	p.vitals(t, `{"room_id":"C","heart_rate":68}`)
	p.scheduler.RunMinuteCycle()
	require.NoError(t, p.ingest.HandleStatus("sensors/status", []byte(`{"room_id":"C","status":"PEOPLE_FALL"}`)))

	p.scheduler.RunFallCycle()

	require.Len(t, p.store.rows, 1)
	assert.True(t, p.store.rows[0].IsFall)
	assert.Equal(t, 68, *p.store.rows[0].HeartRate)
}

func TestDailyCycle_SweepsExpiredSummaries(t *testing.T) {
	p := newPipeline(t)

	oldDir := filepath.Join(p.journal.Dir(), "summaries", "OLD")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "2026-09-01.jsonl"), []byte("{}\n"), 0o644))

	p.vitals(t, `{"room_id":"NEW","heart_rate":70}`)
	p.scheduler.RunMinuteCycle()

	p.scheduler.RunDailyCycle()

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(p.journal.Dir(), "summaries", "NEW", "2026-10-16.jsonl"))
	assert.NoError(t, err)
}

func TestFifteenMinuteJob_InvariantViolationIsFatal(t *testing.T) {
	p := newPipeline(t)
	var fatalMsg string
	p.scheduler.fatal = func(msg string, fields ...zap.Field) { fatalMsg = msg }

	// 写库过程中十五分钟窗口被外部清空，Commit 时发现数据缺失
	p.vitals(t, `{"room_id":"A","heart_rate":70}`)
	p.scheduler.RunMinuteCycle()
	p.scheduler.persister = aggregator.NewPersister(p.window, clearingResolver{p.window}, p.store, nil, zap.NewNop())

	p.scheduler.runFifteenMinuteJob()
	assert.NotEmpty(t, fatalMsg)
}

// clearingResolver 在解析过程中提交掉整个窗口，模拟加锁逻辑被破坏
type clearingResolver struct {
	window *state.WindowAccumulator
}

func (r clearingResolver) Resolve(ctx context.Context, roomID string) (string, error) {
	if err := r.window.Commit(r.window.Snapshot()); err != nil {
		return "", err
	}
	return "p", nil
}

func TestStartStop(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.scheduler.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.scheduler.Stop(ctx))
}

func TestStart_InvalidSchedule(t *testing.T) {
	p := newPipeline(t)
	p.scheduler.schedules.Minute = "not a schedule"
	assert.Error(t, p.scheduler.Start())
}
