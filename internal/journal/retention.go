package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SweepResult 清理结果
type SweepResult struct {
	FilesRemoved int
	DirsRemoved  int
}

// Sweep 删除早于保留期的分钟汇总与原始日志，并移除清理后为空的房间目录
// 文件日期早于 (今天 - retentionDays) 即删除
func (j *Journal) Sweep(now time.Time, retentionDays int) (SweepResult, error) {
	var res SweepResult
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := today.AddDate(0, 0, -retentionDays)

	rooms, err := os.ReadDir(filepath.Join(j.dir, summaryDir))
	if err != nil {
		return res, fmt.Errorf("failed to read summaries dir: %w", err)
	}

	var errs []error
	for _, room := range rooms {
		if !room.IsDir() {
			continue
		}
		roomDir := filepath.Join(j.dir, summaryDir, room.Name())
		removed, err := j.sweepDir(roomDir, cutoff, summarySuffix, now.Location())
		res.FilesRemoved += removed
		if err != nil {
			errs = append(errs, err)
			continue
		}

		dirRemoved, err := j.removeIfEmpty(roomDir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if dirRemoved {
			res.DirsRemoved++
		}
	}

	removed, err := j.sweepDir(filepath.Join(j.dir, rawDir), cutoff, rawSuffix, now.Location())
	res.FilesRemoved += removed
	if err != nil {
		errs = append(errs, err)
	}

	j.logger.Info("Journal retention sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("files_removed", res.FilesRemoved),
		zap.Int("dirs_removed", res.DirsRemoved),
		zap.Int("error_count", len(errs)),
	)

	if len(errs) > 0 {
		return res, fmt.Errorf("retention sweep: %w", errors.Join(errs...))
	}
	return res, nil
}

// removeIfEmpty 持追加锁检查并删除空的房间目录，避免与 AppendSummary 交错
func (j *Journal) removeIfEmpty(dir string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	left, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	if len(left) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return true, nil
}

// sweepDir 删除目录下以日期开头且早于 cutoff 的文件；无法识别日期的文件保留
func (j *Journal) sweepDir(dir string, cutoff time.Time, suffix string, loc *time.Location) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) || len(name) < len(dayLayout) {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, name[:len(dayLayout)], loc)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
