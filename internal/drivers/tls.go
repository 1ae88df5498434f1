// internal/drivers/tls.go
package drivers

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig monta a config TLS das câmeras. Com insecure=true qualquer
// certificado é aceito (frota legada com cert auto-assinado). Com caFile,
// só certificados assinados por essa CA passam.
func TLSConfig(insecure bool, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
		return cfg, nil
	}
	if insecure {
		cfg.InsecureSkipVerify = true //nolint:gosec - escolha explícita via config
	}
	return cfg, nil
}
