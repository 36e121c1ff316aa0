package rembg

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "u2net"

// DefaultConfigPath is read when REMBG_CONFIG_PATH is unset.
const DefaultConfigPath = "rembg_config.json"

type fileConfig struct {
	ModelName string `json:"model_name"`
}

// LoadModelName reads the model name from a JSON file of the form
// {"model_name": "..."}. Missing or invalid files yield DefaultModel.
func LoadModelName(path string) string {
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("cannot read rembg config, using default model")
		}
		return DefaultModel
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("invalid rembg config, using default model")
		return DefaultModel
	}
	if name := strings.TrimSpace(cfg.ModelName); name != "" {
		return name
	}
	return DefaultModel
}
