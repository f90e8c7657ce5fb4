package scenario

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrNoScenario = errors.New("no scenario loaded")

// ScenarioManager loads the starting roster of a match
type ScenarioManager struct {
	logger   *zap.Logger
	scenario *models.Scenario
	mu       sync.RWMutex
}

// NewScenarioManager creates a new scenario manager
func NewScenarioManager(logger *zap.Logger) *ScenarioManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenarioManager{logger: logger}
}

// LoadScenario loads a scenario from a YAML file
func (sm *ScenarioManager) LoadScenario(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read scenario file: %w", err)
	}

	return sm.LoadScenarioFromBytes(data)
}

// LoadScenarioFromBytes loads a scenario from YAML bytes. The previous
// scenario stays loaded if data is invalid.
func (sm *ScenarioManager) LoadScenarioFromBytes(data []byte) error {
	var scenarioFile models.ScenarioFile
	if err := yaml.Unmarshal(data, &scenarioFile); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(&scenarioFile.Scenario); err != nil {
		return err
	}

	sm.mu.Lock()
	sm.scenario = &scenarioFile.Scenario
	sm.mu.Unlock()

	sm.logger.Info("Loaded scenario",
		zap.String("name", scenarioFile.Scenario.Name),
		zap.Int("entities", len(scenarioFile.Scenario.Entities)))
	return nil
}

// GetCurrentScenario returns the currently loaded scenario, or nil
func (sm *ScenarioManager) GetCurrentScenario() *models.Scenario {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.scenario
}

// NewWorld builds a fresh world populated with the scenario's roster
func (sm *ScenarioManager) NewWorld() (*world.World, error) {
	s := sm.GetCurrentScenario()
	if s == nil {
		return nil, ErrNoScenario
	}

	w := world.New(s.Width, s.Height)
	for _, spec := range s.Entities {
		if _, err := w.Spawn(toEntity(spec)); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	return w, nil
}

func toEntity(spec models.EntitySpec) world.Entity {
	return world.Entity{
		ID:                spec.ID,
		Team:              spec.Team,
		Health:            spec.Health,
		MaxHealth:         spec.Health,
		Armor:             spec.Armor,
		Damage:            spec.Damage,
		Range:             spec.Range,
		Speed:             spec.Speed,
		Position:          world.Position{X: spec.X, Y: spec.Y},
		Reviveable:        spec.Reviveable,
		Decay:             spec.Decay,
		ConstructionSteps: spec.ConstructionSteps,
	}
}

func validate(s *models.Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("scenario name is required"))
	}
	if s.Width <= 0 || s.Height <= 0 {
		errs = append(errs, fmt.Errorf("scenario size must be positive, got %dx%d", s.Width, s.Height))
	}

	seen := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		switch {
		case e.ID == "":
			errs = append(errs, fmt.Errorf("entity %d: id is required", i))
		case seen[e.ID]:
			errs = append(errs, fmt.Errorf("entity %s: duplicate id", e.ID))
		}
		seen[e.ID] = true
		if e.Health <= 0 {
			errs = append(errs, fmt.Errorf("entity %s: health must be positive", e.ID))
		}
		if e.X < 0 || e.Y < 0 || e.X >= s.Width || e.Y >= s.Height {
			errs = append(errs, fmt.Errorf("entity %s: position %d,%d is outside the map", e.ID, e.X, e.Y))
		}
	}
	return errors.Join(errs...)
}
