package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedGeography(t *testing.T) {
	wilayas, err := Load()
	require.NoError(t, err)
	require.Len(t, wilayas, WilayaCount)

	assert.Equal(t, "01", wilayas[0].Code)
	assert.Equal(t, "58", wilayas[WilayaCount-1].Code)
	for _, w := range wilayas {
		require.NotEmpty(t, w.Cities, "wilaya %s has no communes", w.Code)
		for _, c := range w.Cities {
			assert.Equal(t, w.Code, c.WilayaCode)
		}
	}
}

func TestParseRejectsDuplicateCity(t *testing.T) {
	doc := []byte(`
wilayas:
  - code: "16"
    name: Alger
    cities:
      - {id: 1601, name: Alger Centre}
  - code: "31"
    name: Oran
    cities:
      - {id: 1601, name: Oran}
`)
	_, err := Parse(doc)
	assert.ErrorContains(t, err, "city 1601")
}

func TestParseRejectsDuplicateWilaya(t *testing.T) {
	_, err := Parse([]byte("wilayas:\n  - {code: \"16\", name: Alger}\n  - {code: \"16\", name: Alger}\n"))
	assert.ErrorContains(t, err, "duplicate wilaya code 16")
}
