package api

import (
	"io"
	"net/http"
	"os"

	"github.com/rovelink/rovelink/internal/app"
	"github.com/rovelink/rovelink/pkg/yaml"
)

// configHandler reads and writes main config file, changes are applied
// on next start
func configHandler(w http.ResponseWriter, r *http.Request) {
	if app.ConfigPath == "" {
		http.Error(w, "", http.StatusGone)
		return
	}

	switch r.Method {
	case "GET":
		data, err := os.ReadFile(app.ConfigPath)
		if err != nil {
			http.Error(w, "", http.StatusNotFound)
			return
		}
		Response(w, data, "application/yaml")

	case "POST", "PATCH":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if r.Method == "PATCH" {
			// no need to validate after merge
			data, err = mergeYAML(app.ConfigPath, data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			var tmp map[string]any
			if err = yaml.Unmarshal(data, &tmp); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		if err = os.WriteFile(app.ConfigPath, data, 0644); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func mergeYAML(path string, patch []byte) ([]byte, error) {
	// empty or missing file is OK
	data, _ := os.ReadFile(path)

	var config1 map[string]any
	if err := yaml.Unmarshal(data, &config1); err != nil {
		return nil, err
	}

	var config2 map[string]any
	if err := yaml.Unmarshal(patch, &config2); err != nil {
		return nil, err
	}

	if config1 == nil {
		config1 = map[string]any{}
	}

	return yaml.Encode(merge(config1, config2), 2)
}

func merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if vv, ok := dst[k]; ok {
			switch vv := vv.(type) {
			case map[string]any:
				if v, ok := v.(map[string]any); ok {
					dst[k] = merge(vv, v)
				} else {
					dst[k] = v
				}
			default:
				dst[k] = v
			}
		} else {
			dst[k] = v
		}
	}
	return dst
}
