package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.2.0", "1.2.0", false},
		{"1.10.0", "1.9.0", true},
		{"1.0.0", "1.0.1", false},
		{"2.0.0", "2.0.0-rc.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			assert.Equal(t, tt.want, isNewerVersion(tt.latest, tt.current))
		})
	}
}

func TestVersionChecker_Check(t *testing.T) {
	var gotETag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/"+releaseRepo+"/releases/latest", r.URL.Path)
		gotETag = r.Header.Get("If-None-Match")
		if gotETag == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name": "v9.9.9"}`))
	}))
	defer srv.Close()

	vc := NewVersionChecker(srv.URL)
	require.NoError(t, vc.check(context.Background()))
	assert.Equal(t, "9.9.9", vc.Info().Latest)

	require.NoError(t, vc.check(context.Background()))
	assert.Equal(t, `"abc"`, gotETag)
	assert.Equal(t, "9.9.9", vc.Info().Latest)
}

func TestVersionChecker_RetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	vc := NewVersionChecker(srv.URL)
	err := vc.check(context.Background())
	require.ErrorIs(t, err, errRetryable)
	assert.Empty(t, vc.Info().Latest)
}

func TestVersionChecker_IgnoresPrerelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v2.0.0-beta", "prerelease": true}`))
	}))
	defer srv.Close()

	vc := NewVersionChecker(srv.URL)
	require.NoError(t, vc.check(context.Background()))
	assert.Empty(t, vc.Info().Latest)
}

func TestVersionChecker_StartStop(t *testing.T) {
	vc := NewVersionChecker("http://127.0.0.1:0")
	vc.Start(context.Background())
	vc.Stop()
	vc.Stop()
}
