package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	dbconfig "github.com/rdxz2/t3dapi/pkg/database"
	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager is the SQLite project store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

var _ interfaces.DatabaseManager = (*Manager)(nil)

// NewManager opens the database and starts the writer goroutine.
// Migrations are applied by the caller (see MigrationManager).
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.Named("database"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			m.logger.Debug("write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateProject inserts a project or refreshes its name and active flag
func (m *Manager) CreateProject(ctx context.Context, project *types.Project) error {
	if !types.IsValidProjectCode(project.Code) {
		return types.ErrInvalidProjectCode
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO projects (code, name, is_active)
			VALUES (?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				name = excluded.name,
				is_active = excluded.is_active,
				update_date = CURRENT_TIMESTAMP
		`, project.Code, project.Name, project.IsActive)
		if err != nil {
			return fmt.Errorf("failed to insert project %s: %w", project.Code, err)
		}
		return nil
	})
}

// FindProjectByCode returns the active project with the given code.
// FUNCTIONAL DISCOVERY: Inactive projects are reported as not found so no room
// can be opened for an archived project
func (m *Manager) FindProjectByCode(ctx context.Context, code string) (*types.Project, error) {
	var project types.Project
	err := m.db.QueryRowContext(ctx,
		`SELECT code, name, is_active FROM projects WHERE code = ? AND is_active = 1`,
		code,
	).Scan(&project.Code, &project.Name, &project.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", code, interfaces.ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project %s: %w", code, err)
	}
	return &project, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
