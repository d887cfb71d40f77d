// Package geo holds the reference geography: the 58 wilayas and the
// communes the network serves.
package geo

import (
	_ "embed"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const WilayaCount = 58

//go:embed wilayas.yaml
var wilayasYAML []byte

type document struct {
	Wilayas []model.Wilaya `yaml:"wilayas"`
}

// Load parses the embedded data set.
func Load() ([]model.Wilaya, error) {
	return Parse(wilayasYAML)
}

// Parse decodes a geography document and checks that wilaya codes and city
// ids are unique.
func Parse(data []byte) ([]model.Wilaya, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "error parsing geography")
	}

	codes := make(map[string]bool, len(doc.Wilayas))
	cities := make(map[int64]string)
	for i := range doc.Wilayas {
		w := &doc.Wilayas[i]
		if w.Code == "" || w.Name == "" {
			return nil, errors.Errorf("wilaya #%d has no code or name", i+1)
		}
		if codes[w.Code] {
			return nil, errors.Errorf("duplicate wilaya code %s", w.Code)
		}
		codes[w.Code] = true
		for j := range w.Cities {
			c := &w.Cities[j]
			if other, ok := cities[c.ID]; ok {
				return nil, errors.Errorf("city %d listed in wilayas %s and %s", c.ID, other, w.Code)
			}
			cities[c.ID] = w.Code
			c.WilayaCode = w.Code
		}
	}
	return doc.Wilayas, nil
}
