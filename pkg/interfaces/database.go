package interfaces

import (
	"context"

	"github.com/rdxz2/t3dapi/pkg/types"
)

// ProjectLookup confirms a project code refers to a real, active project
// ARCHITECTURAL DISCOVERY: Only used to gate first-time room creation, so the
// broker never depends on a particular project store
type ProjectLookup interface {
	// FindProjectByCode returns ErrProjectNotFound when no active project has the code
	FindProjectByCode(ctx context.Context, code string) (*types.Project, error)
}

// DatabaseManager is a project store the broker owns the lifecycle of
type DatabaseManager interface {
	ProjectLookup

	// CreateProject registers a project so rooms can be opened for it
	CreateProject(ctx context.Context, project *types.Project) error

	// HealthCheck verifies connectivity
	// FUNCTIONAL DISCOVERY: Context enables health check timeout to prevent
	// hanging health checks from blocking application startup
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
