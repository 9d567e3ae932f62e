package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

const (
	rawDir        = "raw"
	summaryDir    = "summaries"
	livenessFile  = "heartbeat"
	dayLayout     = "2006-01-02"
	summarySuffix = ".jsonl"
	rawSuffix     = ".log"
)

// Journal 磁盘上的追加日志
//
//	<dir>/raw/<日期>_<主题>.log           每个主题每天一个原始消息文件
//	<dir>/summaries/<房间>/<日期>.jsonl    每个房间每天一个分钟汇总文件
//	<dir>/heartbeat                        每分钟覆盖写入当前时间
type Journal struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// New 创建日志目录
func New(dir string, logger *zap.Logger) (*Journal, error) {
	for _, sub := range []string{rawDir, summaryDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal dir %s: %w", sub, err)
		}
	}
	return &Journal{
		dir:    dir,
		logger: logger.With(zap.String("component", "journal")),
	}, nil
}

// Dir 日志根目录
func (j *Journal) Dir() string {
	return j.dir
}

// AppendRaw 追加一条原始消息（压缩为单行）
func (j *Journal) AppendRaw(topic string, payload []byte, at time.Time) error {
	var line bytes.Buffer
	if err := json.Compact(&line, payload); err != nil {
		line.Reset()
		line.Write(bytes.ReplaceAll(payload, []byte("\n"), []byte(" ")))
	}
	line.WriteByte('\n')

	name := fmt.Sprintf("%s_%s%s", at.Format(dayLayout), topicSlug(topic), rawSuffix)
	return j.appendLine(filepath.Join(j.dir, rawDir, name), line.Bytes())
}

// AppendSummary 追加房间分钟汇总
func (j *Journal) AppendSummary(roomID string, at time.Time, summary models.MinuteSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	data = append(data, '\n')

	roomDir := filepath.Join(j.dir, summaryDir, pathSafe(roomID))
	return j.appendLine(filepath.Join(roomDir, at.Format(dayLayout)+summarySuffix), data)
}

// TouchLiveness 覆盖写入存活文件（写临时文件后改名，读者不会看到半行）
func (j *Journal) TouchLiveness(at time.Time) error {
	path := filepath.Join(j.dir, livenessFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(at.Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write liveness file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace liveness file: %w", err)
	}
	return nil
}

// appendLine 追加一行；目录在锁内创建，与 Sweep 删除空目录互斥
func (j *Journal) appendLine(path string, line []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return file.Close()
}

func topicSlug(topic string) string {
	return strings.NewReplacer("/", "_", "+", "any", "#", "all").Replace(topic)
}

func pathSafe(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
}
