// Package cleanup はどのタスクからも参照されていない書類ファイルの自動削除ジョブを提供する。
// リクエスト途中のクラッシュやユーザー削除の連鎖で残ったファイルを
// 猶予期間（デフォルト1時間）経過後に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskhub/internal/upload"
)

// DocumentLister はタスクが参照している書類パスの一覧を返す。
// repository.TaskRepositoryが実装する。
type DocumentLister interface {
	ListDocumentPaths(ctx context.Context) ([]string, error)
}

// FileStore は保存ディレクトリのファイル一覧と削除を行う。upload.Storeが実装する。
type FileStore interface {
	List() ([]upload.FileInfo, error)
	Remove(paths []string)
}

// OrphanRecorder は削除件数の記録先。
type OrphanRecorder interface {
	RecordOrphansRemoved(count int)
}

// CleanupJob は参照されていない書類ファイルの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	docs        DocumentLister
	files       FileStore
	metrics     OrphanRecorder
	logger      *slog.Logger
	now         func() time.Time
	GracePeriod time.Duration // 更新からこの期間を経過していないファイルは削除しない
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの猶予期間は1時間。
func NewCleanupJob(docs DocumentLister, files FileStore, mc OrphanRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		docs:        docs,
		files:       files,
		metrics:     mc,
		logger:      logger,
		now:         time.Now,
		GracePeriod: time.Hour,
	}
}

// Run は参照されておらず猶予期間を過ぎたファイルを削除する。
// 作成直後でまだタスクに記録されていないファイルは猶予期間によって守られる。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	// 参照一覧より先にファイル一覧を取ると、その間に記録されたファイルを誤って消しうる
	referenced, err := j.docs.ListDocumentPaths(ctx)
	if err != nil {
		j.logger.Error("document cleanup job failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to list referenced documents: %w", err)
	}

	files, err := j.files.List()
	if err != nil {
		j.logger.Error("document cleanup job failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to list stored files: %w", err)
	}

	inUse := make(map[string]struct{}, len(referenced))
	for _, p := range referenced {
		inUse[p] = struct{}{}
	}

	cutoff := j.now().Add(-j.GracePeriod)
	var orphans []string
	for _, f := range files {
		if _, ok := inUse[f.Path]; ok {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}
		orphans = append(orphans, f.Path)
	}

	if len(orphans) > 0 {
		j.files.Remove(orphans)
		if j.metrics != nil {
			j.metrics.RecordOrphansRemoved(len(orphans))
		}
	}

	j.logger.Info("document cleanup job completed",
		slog.Int("deleted_count", len(orphans)),
		slog.Int("scanned_count", len(files)),
		slog.Duration("grace_period", j.GracePeriod),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以後intervalごとにRunを繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("document cleanup job started",
		slog.Duration("interval", interval),
	)

	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("document cleanup job stopped")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
