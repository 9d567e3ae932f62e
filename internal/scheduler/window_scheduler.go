package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-vitals/internal/aggregator"
	"wisefido-vitals/internal/journal"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SummaryJournal 分钟汇总、存活文件与保留期清理（journal.Journal 实现）
type SummaryJournal interface {
	AppendSummary(roomID string, at time.Time, summary models.MinuteSummary) error
	TouchLiveness(at time.Time) error
	Sweep(now time.Time, retentionDays int) (journal.SweepResult, error)
}

// StatePublisher 分钟状态广播（discovery.Announcer 实现）
type StatePublisher interface {
	PublishStates(snap state.Snapshot, at time.Time) (published, failed int)
}

// Schedules 各周期的 cron 表达式
type Schedules struct {
	Minute        string
	FifteenMinute string
	Daily         string
	FallCheck     string
}

// DefaultSchedules 每分钟 / 每十五分钟 / 每天零点 / 每分钟跌倒检查
var DefaultSchedules = Schedules{
	Minute:        "* * * * *",
	FifteenMinute: "*/15 * * * *",
	Daily:         "@daily",
	FallCheck:     "* * * * *",
}

// WindowScheduler 周期任务调度
// 每个任务与自身串行：上一次未结束时下一次等待，不跳过也不重入
type WindowScheduler struct {
	cron      *cron.Cron
	schedules Schedules

	rooms     *state.RoomStateStore
	window    *state.WindowAccumulator
	journal   SummaryJournal
	states    StatePublisher
	persister *aggregator.Persister
	falls     *aggregator.FallAggregator

	retentionDays int
	cycleTimeout  time.Duration

	logger *zap.Logger
	now    func() time.Time
	fatal  func(msg string, fields ...zap.Field)
}

// Options 调度器参数
type Options struct {
	Schedules     Schedules
	RetentionDays int
	// 单次写库周期的超时
	CycleTimeout time.Duration
	Now          func() time.Time
}

// NewWindowScheduler 创建调度器
func NewWindowScheduler(
	rooms *state.RoomStateStore,
	window *state.WindowAccumulator,
	summaries SummaryJournal,
	states StatePublisher,
	persister *aggregator.Persister,
	falls *aggregator.FallAggregator,
	opts Options,
	logger *zap.Logger,
) *WindowScheduler {
	logger = logger.With(zap.String("component", "scheduler"))

	schedules := opts.Schedules
	if schedules == (Schedules{}) {
		schedules = DefaultSchedules
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 14
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cronLogger := newCronLogger(logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		// 链上的包装对每个任务单独生效，DelayIfStillRunning 使任务只与自身串行
		cron.WithChain(cron.Recover(cronLogger), cron.DelayIfStillRunning(cronLogger)),
	)

	return &WindowScheduler{
		cron:          c,
		schedules:     schedules,
		rooms:         rooms,
		window:        window,
		journal:       summaries,
		states:        states,
		persister:     persister,
		falls:         falls,
		retentionDays: opts.RetentionDays,
		cycleTimeout:  opts.CycleTimeout,
		logger:        logger,
		now:           now,
		fatal:         logger.Fatal,
	}
}

// Start 注册并启动全部周期任务
func (s *WindowScheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"minute", s.schedules.Minute, s.RunMinuteCycle},
		{"fifteen_minute", s.schedules.FifteenMinute, s.runFifteenMinuteJob},
		{"daily", s.schedules.Daily, s.RunDailyCycle},
		{"fall_check", s.schedules.FallCheck, s.RunFallCycle},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s cycle (%q): %w", job.name, job.spec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("minute", s.schedules.Minute),
		zap.String("fifteen_minute", s.schedules.FifteenMinute),
		zap.String("daily", s.schedules.Daily),
		zap.String("fall_check", s.schedules.FallCheck),
	)
	return nil
}

// Stop 停止调度，等待正在运行的任务结束或 ctx 超时
func (s *WindowScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// RunMinuteCycle 读取并重置当前分钟窗口，累加到十五分钟窗口，写分钟汇总、发布状态、更新存活文件
func (s *WindowScheduler) RunMinuteCycle() {
	at := s.now()
	snap := s.rooms.SnapshotAndReset()

	s.window.Absorb(snap)

	minute := at.Format(models.MinuteLayout)
	for room, w := range snap {
		summary := models.MinuteSummary{
			Minute:       minute,
			AvgHR:        state.Average(w.HeartRates),
			AvgRR:        state.Average(w.BreathRates),
			LastDistance: w.LastDistance,
			Samples:      w.Samples,
		}
		if err := s.journal.AppendSummary(room, at, summary); err != nil {
			s.logger.Error("Failed to append minute summary", zap.String("room_id", room), zap.Error(err))
		}
	}

	published, failed := s.states.PublishStates(snap, at)

	if err := s.journal.TouchLiveness(at); err != nil {
		s.logger.Error("Failed to touch liveness file", zap.Error(err))
	}

	s.logger.Debug("Minute cycle completed",
		zap.Int("room_count", len(snap)),
		zap.Int("published_count", published),
		zap.Int("error_count", failed),
	)
}

// RunFifteenMinuteCycle 十五分钟写库
func (s *WindowScheduler) RunFifteenMinuteCycle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	_, err := s.persister.Flush(ctx)
	return err
}

func (s *WindowScheduler) runFifteenMinuteJob() {
	err := s.RunFifteenMinuteCycle(context.Background())
	if err == nil {
		return
	}
	if errors.Is(err, state.ErrWindowInvariant) {
		s.fatal("Fifteen-minute window invariant violated", zap.Error(err))
		return
	}
	s.logger.Error("Fifteen-minute cycle failed", zap.Error(err))
}

// RunDailyCycle 清理过期的分钟汇总与原始日志
func (s *WindowScheduler) RunDailyCycle() {
	res, err := s.journal.Sweep(s.now(), s.retentionDays)
	if err != nil {
		s.logger.Error("Retention sweep failed", zap.Error(err))
	}
	s.logger.Info("Retention sweep completed",
		zap.Int("retention_days", s.retentionDays),
		zap.Int("files_removed", res.FilesRemoved),
		zap.Int("dirs_removed", res.DirsRemoved),
	)
}

// RunFallCycle 为处于跌倒状态的房间写入跌倒行
func (s *WindowScheduler) RunFallCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	res := s.falls.Check(ctx)
	if res.Persisted > 0 || res.Failed > 0 {
		s.logger.Info("Fall check completed",
			zap.Int("persisted_count", res.Persisted),
			zap.Int("error_count", res.Failed),
		)
	}
}
