// Package upload はタスクに添付するPDF書類の検証とディスク保存を提供する。
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskhub/internal/metrics"
	"github.com/hitoshi/taskhub/internal/model"
)

const (
	// FieldName はmultipartフォームで書類を受け取るフィールド名。
	FieldName = "documents"
	// PublicPrefix はタスクに記録するパスの接頭辞。/uploads/* で配信される。
	PublicPrefix = "uploads"
	// DefaultMaxSize は1ファイルあたりの既定上限（5MB）。
	DefaultMaxSize int64 = 5 * 1024 * 1024
)

// pdfMagic はPDFファイル先頭のマジックバイト。
var pdfMagic = []byte("%PDF-")

// 拒否理由のメトリクスラベル。
const (
	rejectCount = "count"
	rejectSize  = "size"
	rejectType  = "type"
)

// Config はStoreの設定。
type Config struct {
	Dir     string
	MaxSize int64
}

// Store はアップロードされた書類をディレクトリに保存する。
type Store struct {
	dir     string
	maxSize int64
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewStore はStoreを生成し、保存先ディレクトリを作成する。
func NewStore(cfg Config, mc metrics.MetricsCollector) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{
		dir:     cfg.Dir,
		maxSize: cfg.MaxSize,
		metrics: mc,
		now:     time.Now,
	}, nil
}

// Dir は保存先ディレクトリを返す。
func (s *Store) Dir() string {
	return s.dir
}

// MaxRequestBytes は書類上限数ぶんのファイルとフォーム項目を含むリクエストボディの上限を返す。
func (s *Store) MaxRequestBytes() int64 {
	return s.maxSize*model.MaxDocuments + 1<<20
}

// Validate は保存前にファイル数・サイズ・種別を検証する。
// 違反があればINVALID_UPLOADエラーを返し、ディスクには何も書かない。
func (s *Store) Validate(files []*multipart.FileHeader) error {
	if len(files) > model.MaxDocuments {
		s.metrics.RecordUploadRejected(rejectCount)
		return model.NewInvalidUploadError(fmt.Sprintf("A task can have at most %d documents", model.MaxDocuments))
	}
	for _, fh := range files {
		if fh.Size > s.maxSize {
			s.metrics.RecordUploadRejected(rejectSize)
			return model.NewInvalidUploadError(fmt.Sprintf("File %q exceeds the %dMB limit", fh.Filename, s.maxSize/(1024*1024)))
		}
		if !declaredPDF(fh) {
			s.metrics.RecordUploadRejected(rejectType)
			return model.NewInvalidUploadError("Only PDF files are allowed")
		}
	}
	return nil
}

// SaveAll はファイルを検証して保存し、タスクに記録するパスを受信順で返す。
// 途中で失敗した場合は同じリクエストで書き込んだファイルを削除してからエラーを返す。
func (s *Store) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	if err := s.Validate(files); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		p, err := s.save(fh)
		if err != nil {
			s.Remove(paths)
			return nil, err
		}
		paths = append(paths, p)
	}

	if len(paths) > 0 {
		s.metrics.RecordDocumentsStored(len(paths))
	}
	return paths, nil
}

// save は1ファイルを一意な名前で保存する。先頭バイトがPDFでなければ拒否する。
func (s *Store) save(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(src, head)
	if err != nil || !bytes.Equal(head[:n], pdfMagic) {
		s.metrics.RecordUploadRejected(rejectType)
		return "", model.NewInvalidUploadError("Only PDF files are allowed")
	}

	name := fmt.Sprintf("%d-%s.pdf", s.now().UnixMilli(), uuid.New().String())
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}

	// 上限+1バイトまでしか読まないことで、ヘッダーのサイズ詐称も検出する
	limited := io.LimitReader(io.MultiReader(bytes.NewReader(head[:n]), src), s.maxSize+1)
	written, copyErr := io.Copy(dst, limited)
	closeErr := dst.Close()
	if copyErr == nil && written > s.maxSize {
		s.metrics.RecordUploadRejected(rejectSize)
		copyErr = model.NewInvalidUploadError(fmt.Sprintf("File %q exceeds the %dMB limit", fh.Filename, s.maxSize/(1024*1024)))
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		var apiErr *model.APIError
		if errors.As(copyErr, &apiErr) {
			return "", apiErr
		}
		return "", fmt.Errorf("failed to write document file: %w", copyErr)
	}

	return path.Join(PublicPrefix, name), nil
}

// Remove はタスクに記録されたパスのファイルを削除する。
// 存在しないファイルは無視し、その他の失敗はログに残して処理を続ける。
func (s *Store) Remove(paths []string) {
	for _, p := range paths {
		full, ok := s.resolve(p)
		if !ok {
			slog.Warn("refusing to remove document outside upload dir", slog.String("path", p))
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove document",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// FileInfo は保存ディレクトリ内のファイル1件を表す。
type FileInfo struct {
	Path    string // タスクに記録される形式のパス
	ModTime time.Time
}

// List は保存ディレクトリ直下の通常ファイルを返す。
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload dir: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    path.Join(PublicPrefix, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// resolve はタスクに記録されたパスを保存ディレクトリ内の実パスに変換する。
// 接頭辞が違う、またはディレクトリ外を指すパスはfalseを返す。
func (s *Store) resolve(p string) (string, bool) {
	name, ok := strings.CutPrefix(p, PublicPrefix+"/")
	if !ok || name == "" || name != path.Base(name) || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// declaredPDF はクライアントが申告したContent-TypeがPDFかを返す。
func declaredPDF(fh *multipart.FileHeader) bool {
	ct := fh.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.EqualFold(strings.TrimSpace(ct), "application/pdf")
}
