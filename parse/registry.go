package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"ctpcj.dev/nextbus/model"
)

// Parses a station registry: a JSON list of
// {"station_name": ..., "coords": {"lat": ..., "long": ...}}
// objects. Comments and trailing commas are accepted.
func ParseRegistry(data []byte) (model.Registry, error) {
	stations := model.Registry{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &stations); err != nil {
		return nil, fmt.Errorf("unmarshaling registry: %w", err)
	}

	seen := map[string]bool{}
	for i, s := range stations {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("empty station_name (entry %d)", i+1)
		}

		key := strings.ToLower(s.Name)
		if seen[key] {
			return nil, fmt.Errorf("repeated station_name '%s'", s.Name)
		}
		seen[key] = true

		if s.Coords.Lat < -90 || s.Coords.Lat > 90 {
			return nil, fmt.Errorf("invalid lat %f for '%s'", s.Coords.Lat, s.Name)
		}
		if s.Coords.Long < -180 || s.Coords.Long > 180 {
			return nil, fmt.Errorf("invalid long %f for '%s'", s.Coords.Long, s.Name)
		}
	}

	return stations, nil
}

func LoadRegistry(path string) (model.Registry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	stations, err := ParseRegistry(buf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return stations, nil
}
