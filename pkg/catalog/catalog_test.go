package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 6, c.Len())
	require.Equal(t, "us-ny", c.First().ID)

	ep, ok := c.Get("us-chi")
	require.True(t, ok)
	require.Equal(t, "Chicago", ep.City)
	require.Equal(t, "Chicago, IL", ep.Location())

	_, ok = c.Get("eu-ams")
	require.False(t, ok)
}

func TestListIsCopy(t *testing.T) {
	c := Default()
	list := c.List()
	list[0].City = "Mutated"

	ep, _ := c.Get("us-ny")
	require.Equal(t, "New York", ep.City)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmpty)

	_, err = New([]Endpoint{{ID: "", City: "Nowhere"}})
	require.ErrorIs(t, err, ErrInvalidEndpoint)

	_, err = New([]Endpoint{{ID: "x", City: "X", Load: 101}})
	require.ErrorIs(t, err, ErrInvalidEndpoint)

	_, err = New([]Endpoint{{ID: "x", City: "X"}, {ID: "x", City: "Y"}})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	err := os.WriteFile(path, []byte(`
servers:
  - id: de-fra
    city: Frankfurt
    region: HE
    country: Germany
    load: 12
    latency_ms: 18
`), 0o600)
	require.NoError(t, err)

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	require.Equal(t, uint(18), c.First().LatencyMs)
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.yaml")
	err := os.WriteFile(path, []byte(`
servers:
  - id: de-fra
    city: Frankfurt
    ping: 18
`), 0o600)
	require.NoError(t, err)

	_, err = LoadFile(path)
	require.Error(t, err)
}
