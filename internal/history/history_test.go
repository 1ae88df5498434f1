package history

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/safetynet/internal/classifier"
	"github.com/sua-org/safetynet/internal/core"
	"github.com/sua-org/safetynet/internal/drivers"
)

type mapSource map[string]string

func (m mapSource) Get(_ context.Context, url string) ([]byte, error) {
	body, ok := m[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(body), nil
}

var cam = core.CameraInfo{Name: "gate", IP: "10.0.0.5", Port: 8555}

func TestURL(t *testing.T) {
	f := NewFetcher(mapSource{}, classifier.New(), Config{})
	assert.Equal(t, "http://10.0.0.5/api/detections", f.URL(cam, CategoryDetections))
	assert.Equal(t, "http://10.0.0.5/api/trespass", f.URL(cam, CategoryTrespass))

	f = NewFetcher(mapSource{}, classifier.New(), Config{Secure: true, TrespassPath: "history/trespass"})
	assert.Equal(t, "https://10.0.0.5/history/trespass", f.URL(cam, CategoryTrespass))
}

func TestParseDetections(t *testing.T) {
	body := `{"detections":[
		{"timestamp":"2025-06-01 10:00:00","person_count":3,"helmet_count":3,"safety_vest_count":1,"avg_confidence":0.8,"image_path":"../images/a.jpg"},
		{"timestamp":"2025-06-01 10:05:00","person_count":2,"helmet_count":0,"safety_vest_count":2,"image_path":"images/b.jpg"}
	]}`
	entries, err := Parse([]byte(body), cam, CategoryDetections, classifier.New())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, classifier.LabelVestMissing, entries[0].Event)
	assert.Equal(t, "http://10.0.0.5/images/a.jpg", entries[0].ImageURL)
	assert.Equal(t, classifier.LabelHelmetMissing, entries[1].Event)
	assert.Equal(t, core.FunctionPPE, entries[1].Function)
}

func TestParseTrespassSkipsZeroCount(t *testing.T) {
	body := `{"detections":[
		{"timestamp":"2025-06-01 23:00:00","count":0},
		{"timestamp":"2025-06-01 23:10:00","count":2,"image_path":"../t/1.jpg"}
	]}`
	entries, err := Parse([]byte(body), cam, CategoryTrespass, classifier.New())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.FunctionNight, entries[0].Function)
	assert.Equal(t, "2025-06-01 23:10:00", entries[0].Timestamp)
}

func TestParseInvalidBody(t *testing.T) {
	_, err := Parse([]byte(`<html>`), cam, CategoryDetections, classifier.New())
	assert.Error(t, err)
}

func TestFetchAllReportsEveryFetch(t *testing.T) {
	other := core.CameraInfo{Name: "dock", IP: "10.0.0.6", Port: 8555}
	src := mapSource{
		"http://10.0.0.5/api/detections": `{"detections":[{"timestamp":"2025-06-01 10:00:00","person_count":1}]}`,
		"http://10.0.0.5/api/trespass":   `{"detections":[]}`,
		"http://10.0.0.6/api/detections": `not json`,
	}
	f := NewFetcher(src, classifier.New(), Config{Parallel: 2})

	var mu sync.Mutex
	var results []Result
	f.FetchAll(context.Background(), []core.CameraInfo{cam, other}, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	require.Len(t, results, 4)
	sort.Slice(results, func(i, j int) bool { return results[i].Source() < results[j].Source() })
	assert.Error(t, results[0].Err, "dock/detections")
	assert.Error(t, results[1].Err, "dock/trespass")
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Entries, 1)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, "gate/trespass", results[3].Source())
}

func TestFetchOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/detections", r.URL.Path)
		_, _ = w.Write([]byte(`{"detections":[{"timestamp":"2025-06-01 10:00:00","person_count":2,"helmet_count":2,"safety_vest_count":2}]}`))
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	local := core.CameraInfo{Name: "lab", IP: host, Port: 8555}
	f := NewFetcher(drivers.NewHTTPClient(drivers.Options{}, 0), classifier.New(), Config{Port: port})
	entries, err := f.Fetch(context.Background(), local, CategoryDetections)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, classifier.LabelPPEMissing, entries[0].Event)
	assert.Equal(t, "lab", entries[0].CameraName)
}
