package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// errReadBytes is returned by mapProvider.ReadBytes; koanf uses Read.
var errReadBytes = errors.New("confloader: map provider has no byte form")

// mapProvider feeds a map with dotted keys into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		flat[k] = v
	}
	return maps.Unflatten(flat, "."), nil
}
