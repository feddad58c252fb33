package fleet

import (
	"time"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/cache"
	"fleetops/internal/platform/logx"
)

// registryTTL is how long a loaded inventory stays valid. Discovery files are
// regenerated every few minutes by the provisioning pipeline; five minutes
// keeps repeated batches cheap without serving a stale fleet for long.
const registryTTL = 5 * time.Minute

const registryCacheKey = "fleet:targets"

// Sources configures where the registry loads targets from. Either path may
// be empty; at least one must be set.
type Sources struct {
	// ServiceDiscoveryPath file_sd JSON export
	ServiceDiscoveryPath string

	// LogAccessPath lognavigator XML config
	LogAccessPath string

	// AllowedGroups display groups admitted from the lognavigator source.
	// Empty means all groups.
	AllowedGroups []string
}

// Registry serves the fleet inventory with a TTL cache in front of the
// discovery files.
type Registry struct {
	sources Sources
	cache   *cache.MemoryCache
	logger  logx.Logger
}

// NewRegistry creates a registry over the given sources.
func NewRegistry(sources Sources, logger logx.Logger) *Registry {
	if logger == nil {
		logger = logx.New()
	}
	return &Registry{
		sources: sources,
		cache:   cache.NewMemoryCache(),
		logger:  logger.With("component", "fleet-registry"),
	}
}

// Targets returns the fleet inventory, loading it from disk at most once per
// TTL window.
func (r *Registry) Targets() ([]domain.Target, error) {
	v, err := r.cache.GetOrCompute(registryCacheKey, registryTTL, func() (interface{}, error) {
		return r.load()
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Target), nil
}

// Refresh drops the cached inventory and reloads it from disk.
func (r *Registry) Refresh() ([]domain.Target, error) {
	r.cache.Clear()
	return r.Targets()
}

func (r *Registry) load() ([]domain.Target, error) {
	var lists [][]domain.Target

	if r.sources.ServiceDiscoveryPath != "" {
		sd, err := LoadServiceDiscoveryFile(r.sources.ServiceDiscoveryPath)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("service discovery loaded",
			"path", r.sources.ServiceDiscoveryPath,
			"targets", len(sd),
		)
		lists = append(lists, sd)
	}

	if r.sources.LogAccessPath != "" {
		la, err := LoadLogAccessConfigFile(r.sources.LogAccessPath, r.sources.AllowedGroups)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("log access config loaded",
			"path", r.sources.LogAccessPath,
			"targets", len(la),
		)
		lists = append(lists, la)
	}

	merged := Merge(lists...)
	if len(merged) == 0 {
		return nil, domain.ErrNoTargets
	}

	r.logger.Info("fleet inventory loaded", "targets", len(merged))
	return merged, nil
}
