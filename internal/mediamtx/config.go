// internal/mediamtx/config.go
package mediamtx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/sua-org/safetynet/internal/core"
)

var (
	ErrReloadNotConfigured = errors.New("mediamtx reload not configured")
	// config existente ilegível: não sobrescrevemos um arquivo que pode ter
	// usuários editados à mão
	ErrInvalidConfig = errors.New("invalid mediamtx config")
)

// Config representa o YAML mínimo do MediaMTX para os tiles das câmeras.
type Config struct {
	RTSPAddress       string                `yaml:"rtspAddress,omitempty"`
	HLS               bool                  `yaml:"hls"`
	WebRTC            bool                  `yaml:"webrtc"`
	API               bool                  `yaml:"api"`
	APIAddress        string                `yaml:"apiAddress,omitempty"`
	AuthInternalUsers []AuthInternalUser    `yaml:"authInternalUsers,omitempty"`
	Paths             map[string]PathConfig `yaml:"paths"`
}

type PathConfig struct {
	Source         string `yaml:"source,omitempty"`
	SourceOnDemand bool   `yaml:"sourceOnDemand"`
	// câmeras usam certificado auto-assinado no rtsps
	RTSPTransport string `yaml:"rtspTransport,omitempty"`
}

type AuthInternalUser struct {
	User        string           `yaml:"user"`
	Pass        string           `yaml:"pass,omitempty"`
	IPs         []string         `yaml:"ips,omitempty"`
	Permissions []AuthPermission `yaml:"permissions,omitempty"`
}

type AuthPermission struct {
	Action string `yaml:"action"`
	Path   string `yaml:"path,omitempty"`
}

type Options struct {
	ConfigPath  string `mapstructure:"config_path"`
	ReloadURL   string `mapstructure:"reload_url"`
	ReloadPID   int    `mapstructure:"reload_pid"`
	ReloadUser  string `mapstructure:"reload_user"`
	ReloadPass  string `mapstructure:"reload_pass"`
	ReloadToken string `mapstructure:"reload_token"`
	APIUser     string `mapstructure:"api_user"`
	APIPass     string `mapstructure:"api_pass"`
}

// Generator gera e aplica configs do MediaMTX a partir do registro.
type Generator struct {
	opts       Options
	httpClient *http.Client
	mu         sync.Mutex
}

func logger() *zerolog.Logger {
	l := log.With().Str("component", "mediamtx").Logger()
	return &l
}

// NewGenerator retorna nil sem ConfigPath: Sync vira no-op.
func NewGenerator(opts Options) *Generator {
	opts.ConfigPath = strings.TrimSpace(opts.ConfigPath)
	if opts.ConfigPath == "" {
		return nil
	}
	if opts.ReloadUser == "" && opts.ReloadPass == "" && opts.ReloadToken == "" {
		// Fallback evita 401 quando authInternalUsers está habilitado no MediaMTX.
		opts.ReloadUser = opts.APIUser
		opts.ReloadPass = opts.APIPass
	}
	return &Generator{
		opts:       opts,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Sync escreve a config e aplica reload quando necessário.
func (g *Generator) Sync(cameras []core.CameraInfo) error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, exists, err := g.readExistingConfig()
	if err != nil {
		return err
	}
	cfg := BuildConfig(cameras, g.opts.APIUser, g.opts.APIPass)
	if g.opts.APIUser == "" && g.opts.APIPass == "" {
		cfg.AuthInternalUsers = existing.AuthInternalUsers
	}
	if exists && reflect.DeepEqual(existing, cfg) {
		return nil
	}

	data, err := marshalConfig(cfg)
	if err != nil {
		return fmt.Errorf("marshal mediamtx config: %w", err)
	}
	if err := g.writeFile(data); err != nil {
		return err
	}
	logger().Info().Int("paths", len(cfg.Paths)).Str("path", g.opts.ConfigPath).Msg("config atualizada")

	return g.reload()
}

func BuildConfig(cameras []core.CameraInfo, apiUser, apiPass string) Config {
	cfg := Config{
		RTSPAddress:       ":8554",
		HLS:               false,
		WebRTC:            true,
		API:               true,
		APIAddress:        ":9997",
		AuthInternalUsers: authUsersForAPI(apiUser, apiPass),
		Paths:             make(map[string]PathConfig),
	}

	for _, info := range cameras {
		path := PathName(info)
		if path == "" || info.IP == "" || info.Port <= 0 {
			continue
		}
		cfg.Paths[path] = PathConfig{
			Source:         info.RTSPURL(),
			SourceOnDemand: true,
			RTSPTransport:  "tcp",
		}
	}
	return cfg
}

// PathName é o caminho do tile: nome da câmera em minúsculas, sem espaços.
func PathName(info core.CameraInfo) string {
	p := strings.ToLower(strings.TrimSpace(info.Name))
	p = strings.ReplaceAll(p, " ", "_")
	p = strings.ReplaceAll(p, "-", "_")
	return strings.Trim(p, "/")
}

func authUsersForAPI(apiUser, apiPass string) []AuthInternalUser {
	if apiUser == "" && apiPass == "" {
		return nil
	}
	return []AuthInternalUser{
		{
			User: "any",
			Permissions: []AuthPermission{
				{Action: "publish"},
				{Action: "read"},
			},
		},
		{
			User:        apiUser,
			Pass:        apiPass,
			Permissions: []AuthPermission{{Action: "api"}},
		},
	}
}

func (g *Generator) readExistingConfig() (Config, bool, error) {
	data, err := os.ReadFile(g.opts.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, false, nil
		}
		return Config{}, false, fmt.Errorf("read mediamtx config: %w", err)
	}

	var existing Config
	if err := yaml.Unmarshal(data, &existing); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %v", ErrInvalidConfig, g.opts.ConfigPath, err)
	}
	return existing, true, nil
}

func marshalConfig(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeFile(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(g.opts.ConfigPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(g.opts.ConfigPath, data, 0o644); err != nil {
		return fmt.Errorf("write mediamtx config: %w", err)
	}
	return nil
}

func (g *Generator) reload() error {
	if g.opts.ReloadURL != "" {
		return g.reloadViaHTTP()
	}
	if g.opts.ReloadPID > 0 {
		return g.reloadViaSignal()
	}
	return ErrReloadNotConfigured
}

func (g *Generator) reloadViaSignal() error {
	proc, err := os.FindProcess(g.opts.ReloadPID)
	if err != nil {
		return fmt.Errorf("find mediamtx process: %w", err)
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("signal mediamtx reload: %w", err)
	}
	return nil
}

func (g *Generator) reloadViaHTTP() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.ReloadURL, nil)
	if err != nil {
		return fmt.Errorf("create reload request: %w", err)
	}
	if g.opts.ReloadToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.opts.ReloadToken)
	} else if g.opts.ReloadUser != "" || g.opts.ReloadPass != "" {
		req.SetBasicAuth(g.opts.ReloadUser, g.opts.ReloadPass)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reload mediamtx via HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reload mediamtx via HTTP: status %s", resp.Status)
	}
	return nil
}
