package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImageURL(t *testing.T) {
	cases := []struct {
		ip, path, want string
	}{
		{"10.0.0.5", "../images/foo.jpg", "http://10.0.0.5/images/foo.jpg"},
		{"10.0.0.5", "images/foo.jpg", "http://10.0.0.5/images/foo.jpg"},
		{"10.0.0.5", "/images/foo.jpg", "http://10.0.0.5/images/foo.jpg"},
		{"10.0.0.5", "", ""},
		{"10.0.0.5", "http://cdn/x.jpg", "http://cdn/x.jpg"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ImageURL(c.ip, c.path), c.path)
	}
}

func TestLogEntryTime(t *testing.T) {
	e := LogEntry{Timestamp: "2025-06-01 12:30:00"}
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.Local), e.Time())

	bad := LogEntry{Timestamp: "yesterday"}
	assert.True(t, bad.Time().IsZero())
}

func TestCameraInfo(t *testing.T) {
	c := CameraInfo{Name: "Workshop #1", IP: "192.168.0.87", Port: 8555}
	assert.Equal(t, "192.168.0.87", c.Address())
	assert.Equal(t, "rtsps://192.168.0.87:8555/raw", c.RTSPURL())
}

func TestValidMode(t *testing.T) {
	for _, m := range Modes {
		assert.True(t, ValidMode(m))
	}
	assert.False(t, ValidMode("night"))
	assert.False(t, ValidMode(""))
}

func TestParseFunction(t *testing.T) {
	f, ok := ParseFunction(" sound ")
	assert.True(t, ok)
	assert.Equal(t, FunctionSound, f)

	_, ok = ParseFunction("")
	assert.False(t, ok)
	_, ok = ParseFunction("Thermal")
	assert.False(t, ok)
}
