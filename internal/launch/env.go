package launch

import (
	"sort"
	"strings"
)

// Environment variables every launched process receives.
const (
	EnvDataDir = "ALLYCRAFT_DATA_DIR"
	EnvVersion = "ALLYCRAFT_VERSION"
)

// mergeEnv applies layers over base in order; later layers win. Variables
// from base keep their position, new ones are appended sorted by name.
func mergeEnv(base []string, layers ...map[string]string) []string {
	values := make(map[string]string)
	var order []string
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		if _, seen := values[k]; !seen {
			order = append(order, k)
		}
		values[k] = v
	}

	var added []string
	for _, layer := range layers {
		for k, v := range layer {
			if _, seen := values[k]; !seen {
				added = append(added, k)
			}
			values[k] = v
		}
	}
	sort.Strings(added)
	order = append(order, added...)

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+values[k])
	}
	return out
}
