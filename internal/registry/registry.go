// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sua-org/safetynet/internal/core"
)

var (
	ErrMissingField  = errors.New("name, ip and port are required")
	ErrInvalidIP     = errors.New("invalid IPv4 address")
	ErrInvalidPort   = errors.New("port must be between 1 and 65535")
	ErrDuplicateName = errors.New("camera name already registered")
	ErrDuplicateIP   = errors.New("camera address already registered")
	ErrNotFound      = errors.New("camera not registered")
)

var ipv4Rx = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)$`)

// Registry é a fonte de verdade das câmeras cadastradas.
// Não é thread-safe: só o loop do supervisor mexe nele.
type Registry struct {
	order   []string
	cameras map[string]core.CameraInfo
}

func New() *Registry {
	return &Registry{cameras: make(map[string]core.CameraInfo)}
}

// Validate normaliza e valida os campos do cadastro.
func Validate(info core.CameraInfo) (core.CameraInfo, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.IP = strings.TrimSpace(info.IP)
	if info.Name == "" || info.IP == "" || info.Port == 0 {
		return info, ErrMissingField
	}
	if !ipv4Rx.MatchString(info.IP) {
		return info, fmt.Errorf("%w: %q", ErrInvalidIP, info.IP)
	}
	if info.Port < 1 || info.Port > 65535 {
		return info, fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}
	return info, nil
}

func (r *Registry) Add(info core.CameraInfo) (core.CameraInfo, error) {
	info, err := Validate(info)
	if err != nil {
		return info, err
	}
	if _, ok := r.cameras[info.Name]; ok {
		return info, fmt.Errorf("%w: %s", ErrDuplicateName, info.Name)
	}
	if _, ok := r.ByAddress(info.IP); ok {
		return info, fmt.Errorf("%w: %s", ErrDuplicateIP, info.IP)
	}
	r.cameras[info.Name] = info
	r.order = append(r.order, info.Name)
	return info, nil
}

func (r *Registry) Remove(name string) (core.CameraInfo, error) {
	info, ok := r.cameras[name]
	if !ok {
		return core.CameraInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.cameras, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return info, nil
}

func (r *Registry) Get(name string) (core.CameraInfo, bool) {
	info, ok := r.cameras[name]
	return info, ok
}

func (r *Registry) ByAddress(ip string) (core.CameraInfo, bool) {
	for _, info := range r.cameras {
		if info.IP == ip {
			return info, true
		}
	}
	return core.CameraInfo{}, false
}

// List retorna as câmeras na ordem de cadastro.
func (r *Registry) List() []core.CameraInfo {
	out := make([]core.CameraInfo, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.cameras[n])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

type fileFormat struct {
	Cameras []core.CameraInfo `yaml:"cameras"`
}

// Load lê o arquivo YAML de câmeras. Arquivo inexistente não é erro.
// Entradas inválidas ou duplicadas são devolvidas em skipped.
func (r *Registry) Load(path string) (skipped []error, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}
	for _, info := range f.Cameras {
		if _, err := r.Add(info); err != nil {
			skipped = append(skipped, err)
		}
	}
	return skipped, nil
}

func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(fileFormat{Cameras: r.List()})
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return os.Rename(tmp, path)
}
