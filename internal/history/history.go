// internal/history/history.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sua-org/safetynet/internal/classifier"
	"github.com/sua-org/safetynet/internal/core"
)

type Category string

const (
	CategoryDetections Category = "detections"
	CategoryTrespass   Category = "trespass"
)

// Categories são as buscas feitas por câmera; o merge espera
// len(Categories) resultados por câmera.
var Categories = []Category{CategoryDetections, CategoryTrespass}

const (
	DefaultDetectionsPath = "/api/detections"
	DefaultTrespassPath   = "/api/trespass"
	defaultTimeout        = 10 * time.Second
	defaultParallel       = 4
)

// Source é o GET one-shot do transporte.
type Source interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

type Config struct {
	Secure bool
	// Port do servidor HTTP da câmera; zero usa a porta padrão do esquema.
	Port           int
	DetectionsPath string
	TrespassPath   string
	Timeout        time.Duration
	Parallel       int
}

type Fetcher struct {
	src        Source
	classifier *classifier.Classifier
	cfg        Config
}

type Result struct {
	Camera   core.CameraInfo
	Category Category
	Entries  []core.LogEntry
	Err      error
}

// Source identifica a busca nos logs ("camera/categoria").
func (r Result) Source() string {
	return r.Camera.Name + "/" + string(r.Category)
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "history").Logger()
	return &l
}

func NewFetcher(src Source, c *classifier.Classifier, cfg Config) *Fetcher {
	if cfg.DetectionsPath == "" {
		cfg.DetectionsPath = DefaultDetectionsPath
	}
	if cfg.TrespassPath == "" {
		cfg.TrespassPath = DefaultTrespassPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = defaultParallel
	}
	return &Fetcher{src: src, classifier: c, cfg: cfg}
}

func (f *Fetcher) URL(cam core.CameraInfo, cat Category) string {
	scheme := "http"
	if f.cfg.Secure {
		scheme = "https"
	}
	p := f.cfg.DetectionsPath
	if cat == CategoryTrespass {
		p = f.cfg.TrespassPath
	}
	host := cam.IP
	if f.cfg.Port > 0 {
		host = net.JoinHostPort(cam.IP, strconv.Itoa(f.cfg.Port))
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, strings.TrimLeft(p, "/"))
}

func (f *Fetcher) Fetch(ctx context.Context, cam core.CameraInfo, cat Category) ([]core.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	body, err := f.src.Get(ctx, f.URL(cam, cat))
	if err != nil {
		return nil, err
	}
	return Parse(body, cam, cat, f.classifier)
}

// FetchAll dispara as buscas de todas as câmeras e chama onResult uma vez
// por busca, sucesso ou falha. onResult roda fora do loop: quem chama
// precisa repostar.
func (f *Fetcher) FetchAll(ctx context.Context, cams []core.CameraInfo, onResult func(Result)) {
	var g errgroup.Group
	g.SetLimit(f.cfg.Parallel)
	for _, cam := range cams {
		for _, cat := range Categories {
			cam, cat := cam, cat
			g.Go(func() error {
				entries, err := f.Fetch(ctx, cam, cat)
				onResult(Result{Camera: cam, Category: cat, Entries: entries, Err: err})
				return nil
			})
		}
	}
	_ = g.Wait()
}

type row struct {
	Timestamp     string  `json:"timestamp"`
	PersonCount   float64 `json:"person_count"`
	HelmetCount   float64 `json:"helmet_count"`
	VestCount     float64 `json:"safety_vest_count"`
	AvgConfidence float64 `json:"avg_confidence"`
	ImagePath     string  `json:"image_path"`
	Count         float64 `json:"count"`
}

type response struct {
	Detections []row `json:"detections"`
}

// Parse converte a resposta {"detections": [...]} em logs, com as mesmas
// regras do stream ao vivo.
func Parse(body []byte, cam core.CameraInfo, cat Category, c *classifier.Classifier) ([]core.LogEntry, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s history of %s: %w", cat, cam.Name, err)
	}

	out := make([]core.LogEntry, 0, len(resp.Detections))
	for _, r := range resp.Detections {
		var evt core.Event
		switch cat {
		case CategoryDetections:
			evt = core.Detection{
				PersonCount:   int(r.PersonCount),
				HelmetCount:   int(r.HelmetCount),
				VestCount:     int(r.VestCount),
				AvgConfidence: r.AvgConfidence,
				ImagePath:     r.ImagePath,
				Timestamp:     r.Timestamp,
			}
		case CategoryTrespass:
			if int(r.Count) <= 0 {
				continue
			}
			evt = core.Intrusion{Count: int(r.Count), ImagePath: r.ImagePath, Timestamp: r.Timestamp}
		default:
			return nil, fmt.Errorf("unknown history category %q", cat)
		}
		if entry, ok := c.Entry(evt, cam); ok {
			out = append(out, entry)
		}
	}
	logger().Debug().Str("camera", cam.Name).Str("category", string(cat)).Int("entries", len(out)).Msg("history parsed")
	return out, nil
}
