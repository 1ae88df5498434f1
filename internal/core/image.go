// internal/core/image.go
package core

import "strings"

// ImageURL reescreve o caminho relativo vindo da câmera para URL absoluta:
// "../images/a.jpg" na câmera 10.0.0.5 vira "http://10.0.0.5/images/a.jpg".
func ImageURL(cameraIP, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	path = strings.TrimPrefix(path, "../")
	path = strings.TrimLeft(path, "/")
	return "http://" + cameraIP + "/" + path
}
