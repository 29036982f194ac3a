package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	in := []Descriptor{
		{Version: MustParse("1.14.0"), Size: 10},
		{Version: MustParse("1.20.0"), Size: 10},
		{Version: MustParse("1.21.0"), Size: 10},
		{Version: MustParse("1.21.10"), Size: 10, Beta: true},
		{Version: MustParse("1.19.0"), Size: 0},
	}

	got := Filter(in, DefaultMinimum, false)
	require.Len(t, got, 2)
	assert.Equal(t, "1.21.0", got[0].Version.String())
	assert.Equal(t, "1.20.0", got[1].Version.String())

	withBeta := Filter(in, DefaultMinimum, true)
	require.Len(t, withBeta, 3)
	assert.Equal(t, "1.21.10", withBeta[0].Version.String())
}

func TestCatalogAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"versions":[
			{"version":"1.15.0","version_code":"1","size":100},
			{"version":"1.20.0","version_code":"2","size":100},
			{"version":"1.21.0","version_code":"3","size":100}
		]}`))
	}))
	defer srv.Close()

	cat, err := NewCatalog(CatalogConfig{URL: srv.URL})
	require.NoError(t, err)

	got, err := cat.Available(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].Code)
}

func TestCatalogServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cat, err := NewCatalog(CatalogConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = cat.Available(context.Background())
	assert.Error(t, err)
}

func TestNewCatalogRequiresURL(t *testing.T) {
	_, err := NewCatalog(CatalogConfig{})
	assert.Error(t, err)
}
