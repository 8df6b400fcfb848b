package goals

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// Load decodes the goals document at path. A missing file yields an empty config,
// which disables goal validation.
func Load(path string, logger *slog.Logger) (kpi.GoalsConfig, error) {
	log := logger.With("component", "goals.loader")
	if path == "" {
		log.Warn("no goals file configured; validation disabled")
		return kpi.GoalsConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("goals file not found; validation disabled", "path", path)
		return kpi.GoalsConfig{}, nil
	}
	if err != nil {
		return kpi.GoalsConfig{}, apperrors.Wrap(apperrors.CodeConfig, "read goals file", err)
	}
	return Parse(data)
}

// Parse decodes a goals document and rejects unknown locations.
func Parse(data []byte) (kpi.GoalsConfig, error) {
	var cfg kpi.GoalsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return kpi.GoalsConfig{}, apperrors.Wrap(apperrors.CodeConfig, "parse goals file", err)
	}
	if cfg.Production != nil {
		for loc := range cfg.Production.Daily {
			if !loc.Valid() {
				return kpi.GoalsConfig{}, apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("production goals for unknown location %q", loc), kpi.ErrUnsupportedLocation)
			}
		}
	}
	return cfg, nil
}
