package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// MigrationService applies and rolls back SQL migrations
type MigrationService struct {
	store MigrationStore
	exec  SQLExecutor
	log   *logger.Logger
	now   func() time.Time
}

// NewMigrationService creates a migration executor
func NewMigrationService(store MigrationStore, exec SQLExecutor, log *logger.Logger) *MigrationService {
	return &MigrationService{store: store, exec: exec, log: log, now: time.Now}
}

// MigrationInput describes a new migration
type MigrationInput struct {
	MigrationName string   `json:"migrationName"`
	Description   string   `json:"description"`
	MigrationSQL  string   `json:"migrationSql"`
	RollbackSQL   *string  `json:"rollbackSql,omitempty"`
	DependsOn     []string `json:"dependsOn,omitempty"`
}

// MigrationRunResult is one entry of a bulk run
type MigrationRunResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkMigrationResult summarises ExecuteAllPending
type BulkMigrationResult struct {
	Success  bool                 `json:"success"`
	Executed int                  `json:"executed"`
	Failed   int                  `json:"failed"`
	Total    int                  `json:"total"`
	Results  []MigrationRunResult `json:"results"`
}

// PlanExecutionOrder sorts migrations so every migration follows the ones
// it depends on. Ties keep input order. Unknown dependencies are ignored.
func PlanExecutionOrder(migrations []*models.Migration) ([]*models.Migration, error) {
	index := make(map[string]int, len(migrations))
	for i, m := range migrations {
		if _, dup := index[m.MigrationName]; dup {
			return nil, apperr.Validation("duplicate migration name: %s", m.MigrationName)
		}
		index[m.MigrationName] = i
	}

	indegree := make([]int, len(migrations))
	dependents := make([][]int, len(migrations))
	for i, m := range migrations {
		for _, dep := range m.DependsOn {
			j, ok := index[dep]
			if !ok {
				continue
			}
			if j == i {
				return nil, apperr.Validation("migration %s depends on itself", m.MigrationName)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ready := make([]int, 0, len(migrations))
	for i := range migrations {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]*models.Migration, 0, len(migrations))
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, migrations[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(migrations) {
		var cyclic []string
		for i, m := range migrations {
			if indegree[i] > 0 {
				cyclic = append(cyclic, m.MigrationName)
			}
		}
		return nil, apperr.Validation("migration dependency cycle: %s", strings.Join(cyclic, ", ")).
			WithDetails(map[string]any{"migrations": cyclic})
	}
	return out, nil
}

// Create stores a pending migration and recomputes executionOrder
func (s *MigrationService) Create(ctx context.Context, in MigrationInput) (*models.Migration, error) {
	name := strings.TrimSpace(in.MigrationName)
	if name == "" {
		return nil, apperr.Validation("migrationName is required")
	}
	if strings.TrimSpace(in.MigrationSQL) == "" {
		return nil, apperr.Validation("migrationSql is required")
	}
	if slices.Contains(in.DependsOn, name) {
		return nil, apperr.Validation("migration %s depends on itself", name)
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.MigrationName == name {
			return nil, apperr.Conflict("migration %s already exists", name)
		}
	}
	now := s.now().UTC()
	m := &models.Migration{
		ID:            uuid.New(),
		MigrationName: name,
		Description:   in.Description,
		MigrationSQL:  in.MigrationSQL,
		RollbackSQL:   in.RollbackSQL,
		DependsOn:     in.DependsOn,
		Status:        models.MigrationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	order, err := PlanExecutionOrder(append(existing, m))
	if err != nil {
		return nil, err
	}
	orders := make(map[string]int, len(order))
	for i, o := range order {
		orders[o.MigrationName] = i
	}
	m.ExecutionOrder = orders[name]

	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	if err := s.store.SetOrders(ctx, orders); err != nil {
		return nil, fmt.Errorf("failed to update execution order: %w", err)
	}

	s.log.Info("migration created", "migration", name, "execution_order", m.ExecutionOrder)
	return m, nil
}

// Get returns one migration
func (s *MigrationService) Get(ctx context.Context, id uuid.UUID) (*models.Migration, error) {
	return s.store.Get(ctx, id)
}

// List returns every migration
func (s *MigrationService) List(ctx context.Context) ([]*models.Migration, error) {
	return s.store.List(ctx)
}

// UpdateSQL replaces the scripts of a migration that has not completed
func (s *MigrationService) UpdateSQL(ctx context.Context, id uuid.UUID, migrationSQL string, rollbackSQL *string) (*models.Migration, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if applied, ok := m.Applied(); ok {
		return nil, apperr.Integrity("migration %s is completed and cannot change", applied.Name())
	}
	if m.Status == models.MigrationRunning {
		return nil, apperr.Conflict("migration %s is running", m.MigrationName)
	}
	if strings.TrimSpace(migrationSQL) == "" {
		return nil, apperr.Validation("migrationSql is required")
	}

	m.MigrationSQL = migrationSQL
	m.RollbackSQL = rollbackSQL
	m.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Execute runs a pending or failed migration
func (s *MigrationService) Execute(ctx context.Context, id uuid.UUID, userID string) (*models.Migration, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, m, userID)
}

func (s *MigrationService) execute(ctx context.Context, m *models.Migration, userID string) (*models.Migration, error) {
	if m.Status != models.MigrationPending && m.Status != models.MigrationFailed {
		return nil, apperr.Conflict("migration %s is %s", m.MigrationName, m.Status)
	}
	ok, err := s.store.CompareAndSetStatus(ctx, m.ID,
		[]models.MigrationStatus{models.MigrationPending, models.MigrationFailed}, models.MigrationRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("migration %s is already running or completed", m.MigrationName)
	}
	m.Status = models.MigrationRunning

	log := s.log.WithFields(map[string]any{"migration": m.MigrationName, "user_id": userID})
	log.Info("executing migration")

	started := s.now()
	runErr := s.exec.ExecScript(ctx, m.MigrationSQL)
	elapsed := s.now().Sub(started).Milliseconds()
	m.ExecutionTimeMs = &elapsed
	m.UpdatedAt = s.now().UTC()

	if runErr != nil {
		msg := runErr.Error()
		stack := fmt.Sprintf("%+v", runErr)
		m.Status = models.MigrationFailed
		m.ErrorMessage = &msg
		m.ErrorStack = &stack
		if err := s.store.Save(ctx, m); err != nil {
			log.Error("failed to record migration failure", "error", err)
		}
		log.Error("migration failed", "duration_ms", elapsed, "error", runErr)
		return m, apperr.IO(runErr, "migration %s failed", m.MigrationName)
	}

	appliedAt := s.now().UTC()
	m.Status = models.MigrationCompleted
	m.AppliedAt = &appliedAt
	m.AppliedBy = &userID
	m.ErrorMessage = nil
	m.ErrorStack = nil
	if err := s.store.Save(ctx, m); err != nil {
		return m, fmt.Errorf("failed to record migration success: %w", err)
	}

	log.Info("migration completed", "duration_ms", elapsed)
	return m, nil
}

// Rollback runs the rollback script of a completed migration
func (s *MigrationService) Rollback(ctx context.Context, id uuid.UUID, userID string) (*models.Migration, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applied, ok := m.Applied()
	if !ok {
		return nil, apperr.Conflict("migration %s is %s, only completed migrations roll back", m.MigrationName, m.Status)
	}
	if applied.RollbackSQL() == nil || strings.TrimSpace(*applied.RollbackSQL()) == "" {
		return nil, apperr.Validation("migration %s has no rollback script", m.MigrationName)
	}

	swapped, err := s.store.CompareAndSetStatus(ctx, m.ID,
		[]models.MigrationStatus{models.MigrationCompleted}, models.MigrationRunning)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, apperr.Conflict("migration %s changed state", m.MigrationName)
	}

	if err := s.exec.ExecScript(ctx, *applied.RollbackSQL()); err != nil {
		msg := err.Error()
		m.Status = models.MigrationCompleted
		m.ErrorMessage = &msg
		m.UpdatedAt = s.now().UTC()
		if serr := s.store.Save(ctx, m); serr != nil {
			s.log.Error("failed to restore migration status", "migration", m.MigrationName, "error", serr)
		}
		return m, apperr.IO(err, "rollback of %s failed", m.MigrationName)
	}

	m.Status = models.MigrationRolledBack
	m.ErrorMessage = nil
	m.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, m); err != nil {
		return m, err
	}

	s.log.Info("migration rolled back", "migration", m.MigrationName, "user_id", userID)
	return m, nil
}

// ResetStatus returns a migration to pending and clears its error
func (s *MigrationService) ResetStatus(ctx context.Context, id uuid.UUID) (*models.Migration, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case models.MigrationCompleted:
		return nil, apperr.Integrity("migration %s is completed and cannot be reset", m.MigrationName)
	case models.MigrationRunning:
		return nil, apperr.Conflict("migration %s is running", m.MigrationName)
	}

	m.Status = models.MigrationPending
	m.ErrorMessage = nil
	m.ErrorStack = nil
	m.ExecutionTimeMs = nil
	m.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ExecuteAllPending runs pending migrations in execution order and stops at
// the first failure
func (s *MigrationService) ExecuteAllPending(ctx context.Context, userID string) (*BulkMigrationResult, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	res := &BulkMigrationResult{Success: true, Total: len(pending), Results: []MigrationRunResult{}}
	for _, m := range pending {
		if _, err := s.execute(ctx, m, userID); err != nil {
			res.Success = false
			res.Failed++
			res.Results = append(res.Results, MigrationRunResult{Name: m.MigrationName, Error: err.Error()})
			break
		}
		res.Executed++
		res.Results = append(res.Results, MigrationRunResult{Name: m.MigrationName, Success: true})
	}

	s.log.Info("pending migrations processed", "executed", res.Executed, "failed", res.Failed, "total", res.Total)
	return res, nil
}
