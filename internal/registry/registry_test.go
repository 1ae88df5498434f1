package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/safetynet/internal/core"
)

func TestAddValidates(t *testing.T) {
	r := New()

	_, err := r.Add(core.CameraInfo{Name: " ", IP: "10.0.0.1", Port: 8555})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = r.Add(core.CameraInfo{Name: "cam", IP: "10.0.0.256", Port: 8555})
	assert.ErrorIs(t, err, ErrInvalidIP)

	_, err = r.Add(core.CameraInfo{Name: "cam", IP: "10.0.0.1", Port: 70000})
	assert.ErrorIs(t, err, ErrInvalidPort)

	info, err := r.Add(core.CameraInfo{Name: "  Workshop #1 ", IP: " 10.0.0.1", Port: 8555})
	require.NoError(t, err)
	assert.Equal(t, "Workshop #1", info.Name)
	assert.Equal(t, "10.0.0.1", info.IP)

	_, err = r.Add(core.CameraInfo{Name: "Workshop #1", IP: "10.0.0.2", Port: 8555})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = r.Add(core.CameraInfo{Name: "Workshop #2", IP: "10.0.0.1", Port: 8556})
	assert.ErrorIs(t, err, ErrDuplicateIP)

	assert.Equal(t, 1, r.Len())
}

func TestRemoveKeepsOrder(t *testing.T) {
	r := New()
	for i, n := range []string{"a", "b", "c"} {
		_, err := r.Add(core.CameraInfo{Name: n, IP: "10.0.0." + string(rune('1'+i)), Port: 8555})
		require.NoError(t, err)
	}

	removed, err := r.Remove("b")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", removed.IP)

	names := []string{}
	for _, c := range r.List() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)

	_, err = r.Remove("b")
	assert.ErrorIs(t, err, ErrNotFound)

	got, ok := r.ByAddress("10.0.0.3")
	assert.True(t, ok)
	assert.Equal(t, "c", got.Name)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "cameras.yaml")

	r := New()
	_, err := r.Add(core.CameraInfo{Name: "gate", IP: "192.168.0.35", Port: 554})
	require.NoError(t, err)
	_, err = r.Add(core.CameraInfo{Name: "dock", IP: "192.168.0.36", Port: 8555})
	require.NoError(t, err)
	require.NoError(t, r.Save(path))

	loaded := New()
	skipped, err := loaded.Load(path)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, r.List(), loaded.List())
}

func TestLoadMissingFile(t *testing.T) {
	r := New()
	skipped, err := r.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, 0, r.Len())
}
