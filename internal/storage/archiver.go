// internal/storage/archiver.go
package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sua-org/safetynet/internal/core"
)

// Source baixa a imagem original da câmera.
type Source interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Archiver copia o snapshot de um log para o ImageStore.
type Archiver struct {
	store   ImageStore
	src     Source
	timeout time.Duration
}

func NewArchiver(store ImageStore, src Source, timeout time.Duration) *Archiver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Archiver{store: store, src: src, timeout: timeout}
}

// Archive retorna a URL arquivada. Entradas sem imagem não fazem nada.
func (a *Archiver) Archive(ctx context.Context, e core.LogEntry) (string, error) {
	if e.ImageURL == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	data, err := a.src.Get(ctx, e.ImageURL)
	if err != nil {
		return "", fmt.Errorf("download snapshot %s: %w", e.ImageURL, err)
	}
	return a.store.SaveSnapshot(ctx, ObjectKey(e), data, http.DetectContentType(data))
}

// ObjectKey: <camera>/<function>/<yyyymmdd-hhmmss><ext>
func ObjectKey(e core.LogEntry) string {
	ts := e.Timestamp
	if t := e.Time(); !t.IsZero() {
		ts = t.Format("20060102-150405")
	}
	ext := path.Ext(e.ImageURL)
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s/%s%s", slug(e.CameraName), strings.ToLower(string(e.Function)), slug(ts), ext)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(" ", "_", "-", "_", ":", "", "/", "_")
	s = r.Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
