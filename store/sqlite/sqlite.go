/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements workload.TxStore and workload.RunStore, plus the account tables
  (companies, users) used by the HTTP layer for registration and login.

KEY TABLES:
  companies:          tenant boundary
  users:              identity + credentials, role in ('hr','manager','member')
  manager_profiles:   one row per manager user, holds the derived charge
  resource_profiles:  one row per team member, references its manager
  projects:           dates as YYYY-MM-DD, status in ('planned','active','finished')
  recalculation_runs: history of scheduler passes

DERIVED COLUMNS:
  manager_profiles.charge is only written by SetManagerCharge. UpdateManager
  leaves it alone. projects.status and projects.days_remaining are written by
  SetProjectLifecycle and by UpdateProject, which receives the lifecycle the
  caller derived for the edited dates.

CONCURRENCY:
  A single connection (SQLite has one writer anyway) guarded by
  sync.RWMutex. WithTx holds the write lock for the whole callback; the
  transactional view never touches the lock, so nested reads cannot deadlock.

USAGE:
  store, err := sqlite.New("./data/workload.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - workload/store.go: interface definitions
  - workload/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/workload-engine/workload"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers regardless.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id INTEGER NOT NULL REFERENCES companies(id),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK(role IN ('hr','manager','member')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_company_role
		ON users(company_id, role);

	CREATE TABLE IF NOT EXISTS manager_profiles (
		manager_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		weekly_availability INTEGER NOT NULL DEFAULT 40,
		charge TEXT NOT NULL DEFAULT '0',
		score REAL NOT NULL DEFAULT 50
	);

	CREATE TABLE IF NOT EXISTS resource_profiles (
		resource_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		manager_id INTEGER NOT NULL REFERENCES manager_profiles(manager_id),
		experience INTEGER NOT NULL DEFAULT 0,
		weekly_availability INTEGER NOT NULL DEFAULT 40,
		hourly_cost TEXT NOT NULL DEFAULT '0',
		current_load INTEGER NOT NULL DEFAULT 0,
		avg_skill REAL NOT NULL DEFAULT 50,
		score REAL NOT NULL DEFAULT 50,
		cluster INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_resource_profiles_manager
		ON resource_profiles(manager_id);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id INTEGER NOT NULL REFERENCES companies(id),
		manager_id INTEGER NOT NULL REFERENCES manager_profiles(manager_id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'medium',
		estimated_hours INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'planned' CHECK(status IN ('planned','active','finished')),
		days_remaining INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		CHECK(end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_projects_manager_status
		ON projects(manager_id, status);
	CREATE INDEX IF NOT EXISTS idx_projects_company
		ON projects(company_id);

	CREATE TABLE IF NOT EXISTS recalculation_runs (
		id TEXT PRIMARY KEY,
		today TEXT NOT NULL,
		status TEXT NOT NULL,
		projects_scanned INTEGER NOT NULL DEFAULT 0,
		projects_advanced INTEGER NOT NULL DEFAULT 0,
		managers_scanned INTEGER NOT NULL DEFAULT 0,
		managers_updated INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_recalculation_runs_started
		ON recalculation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (workload.TxStore interface)
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the workload.Store queries against a *sql.DB or a *sql.Tx.
type conn struct {
	q querier
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(workload.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, func(c conn) error { return fn(c) })
}

func (s *Store) withTxLocked(ctx context.Context, fn func(conn) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) read() (conn, func()) {
	s.mu.RLock()
	return conn{q: s.db}, s.mu.RUnlock
}

func (s *Store) write() (conn, func()) {
	s.mu.Lock()
	return conn{q: s.db}, s.mu.Unlock
}

// =============================================================================
// MANAGERS
// =============================================================================

func (s *Store) CreateManager(ctx context.Context, m workload.Manager) (workload.ManagerID, error) {
	var id workload.ManagerID
	err := s.WithTx(ctx, func(st workload.Store) error {
		var err error
		id, err = st.CreateManager(ctx, m)
		return err
	})
	return id, err
}

func (s *Store) GetManager(ctx context.Context, id workload.ManagerID) (*workload.Manager, error) {
	c, done := s.read()
	defer done()
	return c.GetManager(ctx, id)
}

func (s *Store) ListManagers(ctx context.Context) ([]workload.Manager, error) {
	c, done := s.read()
	defer done()
	return c.ListManagers(ctx)
}

func (s *Store) ListManagersByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Manager, error) {
	c, done := s.read()
	defer done()
	return c.ListManagersByCompany(ctx, companyID)
}

func (s *Store) UpdateManager(ctx context.Context, m workload.Manager) error {
	return s.WithTx(ctx, func(st workload.Store) error { return st.UpdateManager(ctx, m) })
}

func (s *Store) SetManagerCharge(ctx context.Context, id workload.ManagerID, charge decimal.Decimal) error {
	c, done := s.write()
	defer done()
	return c.SetManagerCharge(ctx, id, charge)
}

func (s *Store) DeleteManager(ctx context.Context, id workload.ManagerID) error {
	return s.WithTx(ctx, func(st workload.Store) error { return st.DeleteManager(ctx, id) })
}

const managerColumns = `
	u.id, u.company_id, u.first_name, u.last_name, u.email, u.password_hash, u.created_at,
	mp.weekly_availability, mp.charge, mp.score`

const managerFrom = `
	FROM users u
	JOIN manager_profiles mp ON mp.manager_id = u.id`

func scanManager(row interface{ Scan(...any) error }) (workload.Manager, error) {
	var (
		m         workload.Manager
		createdAt string
		charge    string
	)
	err := row.Scan(
		&m.ID, &m.CompanyID, &m.Person.FirstName, &m.Person.LastName, &m.Person.Email,
		&m.Person.PasswordHash, &createdAt, &m.WeeklyAvailability, &charge, &m.Score,
	)
	if err != nil {
		return m, err
	}
	m.CreatedAt = parseTimestamp(createdAt)
	m.Charge = parseDecimal(charge)
	return m, nil
}

func (c conn) CreateManager(ctx context.Context, m workload.Manager) (workload.ManagerID, error) {
	userID, err := c.insertUser(ctx, m.CompanyID, m.Person, workload.RoleManager)
	if err != nil {
		return 0, err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO manager_profiles (manager_id, weekly_availability, charge, score)
		VALUES (?, ?, ?, ?)`,
		userID, m.WeeklyAvailability, m.Charge.String(), m.Score,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert manager profile: %w", err)
	}
	return workload.ManagerID(userID), nil
}

func (c conn) GetManager(ctx context.Context, id workload.ManagerID) (*workload.Manager, error) {
	row := c.q.QueryRowContext(ctx, "SELECT"+managerColumns+managerFrom+" WHERE u.id = ?", id)
	m, err := scanManager(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manager %d: %w", id, err)
	}
	return &m, nil
}

func (c conn) listManagers(ctx context.Context, where string, args ...any) ([]workload.Manager, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT"+managerColumns+managerFrom+where+" ORDER BY u.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query managers: %w", err)
	}
	defer rows.Close()

	var managers []workload.Manager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manager: %w", err)
		}
		managers = append(managers, m)
	}
	return managers, rows.Err()
}

func (c conn) ListManagers(ctx context.Context) ([]workload.Manager, error) {
	return c.listManagers(ctx, "")
}

func (c conn) ListManagersByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Manager, error) {
	return c.listManagers(ctx, " WHERE u.company_id = ?", companyID)
}

func (c conn) UpdateManager(ctx context.Context, m workload.Manager) error {
	if err := c.updatePerson(ctx, int64(m.ID), m.Person); err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE manager_profiles SET weekly_availability = ?, score = ?
		WHERE manager_id = ?`,
		m.WeeklyAvailability, m.Score, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update manager: %w", err)
	}
	return requireRow(res, workload.ErrManagerNotFound)
}

func (c conn) SetManagerCharge(ctx context.Context, id workload.ManagerID, charge decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE manager_profiles SET charge = ? WHERE manager_id = ?",
		workload.ClampCharge(charge).String(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set charge: %w", err)
	}
	return requireRow(res, workload.ErrManagerNotFound)
}

func (c conn) DeleteManager(ctx context.Context, id workload.ManagerID) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM manager_profiles WHERE manager_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete manager profile: %w", err)
	}
	res, err := c.q.ExecContext(ctx, "DELETE FROM users WHERE id = ? AND role = 'manager'", id)
	if err != nil {
		return fmt.Errorf("failed to delete manager: %w", err)
	}
	return requireRow(res, workload.ErrManagerNotFound)
}

// =============================================================================
// RESOURCES
// =============================================================================

func (s *Store) CreateResource(ctx context.Context, r workload.Resource) (workload.ResourceID, error) {
	var id workload.ResourceID
	err := s.WithTx(ctx, func(st workload.Store) error {
		var err error
		id, err = st.CreateResource(ctx, r)
		return err
	})
	return id, err
}

func (s *Store) GetResource(ctx context.Context, id workload.ResourceID) (*workload.Resource, error) {
	c, done := s.read()
	defer done()
	return c.GetResource(ctx, id)
}

func (s *Store) ListResourcesByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Resource, error) {
	c, done := s.read()
	defer done()
	return c.ListResourcesByManager(ctx, managerID)
}

func (s *Store) ListResourcesByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Resource, error) {
	c, done := s.read()
	defer done()
	return c.ListResourcesByCompany(ctx, companyID)
}

func (s *Store) UpdateResource(ctx context.Context, r workload.Resource) error {
	return s.WithTx(ctx, func(st workload.Store) error { return st.UpdateResource(ctx, r) })
}

func (s *Store) DeleteResource(ctx context.Context, id workload.ResourceID) error {
	return s.WithTx(ctx, func(st workload.Store) error { return st.DeleteResource(ctx, id) })
}

const resourceColumns = `
	u.id, u.company_id, u.first_name, u.last_name, u.email, u.password_hash, u.created_at,
	rp.manager_id, rp.experience, rp.weekly_availability, rp.hourly_cost, rp.current_load,
	rp.avg_skill, rp.score, rp.cluster`

const resourceFrom = `
	FROM users u
	JOIN resource_profiles rp ON rp.resource_id = u.id`

func scanResource(row interface{ Scan(...any) error }) (workload.Resource, error) {
	var (
		r          workload.Resource
		createdAt  string
		hourlyCost string
	)
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.Person.FirstName, &r.Person.LastName, &r.Person.Email,
		&r.Person.PasswordHash, &createdAt, &r.ManagerID, &r.Experience, &r.WeeklyAvailability,
		&hourlyCost, &r.CurrentLoad, &r.AvgSkill, &r.Score, &r.Cluster,
	)
	if err != nil {
		return r, err
	}
	r.CreatedAt = parseTimestamp(createdAt)
	r.HourlyCost = parseDecimal(hourlyCost)
	return r, nil
}

func (c conn) CreateResource(ctx context.Context, r workload.Resource) (workload.ResourceID, error) {
	userID, err := c.insertUser(ctx, r.CompanyID, r.Person, workload.RoleMember)
	if err != nil {
		return 0, err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO resource_profiles
		(resource_id, manager_id, experience, weekly_availability, hourly_cost,
		 current_load, avg_skill, score, cluster)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, r.ManagerID, r.Experience, r.WeeklyAvailability, r.HourlyCost.String(),
		r.CurrentLoad, r.AvgSkill, r.Score, r.Cluster,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("create resource: %w", workload.ErrManagerNotFound)
		}
		return 0, fmt.Errorf("failed to insert resource profile: %w", err)
	}
	return workload.ResourceID(userID), nil
}

func (c conn) GetResource(ctx context.Context, id workload.ResourceID) (*workload.Resource, error) {
	row := c.q.QueryRowContext(ctx, "SELECT"+resourceColumns+resourceFrom+" WHERE u.id = ?", id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %d: %w", id, err)
	}
	return &r, nil
}

func (c conn) listResources(ctx context.Context, where string, args ...any) ([]workload.Resource, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT"+resourceColumns+resourceFrom+where+" ORDER BY u.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []workload.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func (c conn) ListResourcesByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Resource, error) {
	return c.listResources(ctx, " WHERE rp.manager_id = ?", managerID)
}

func (c conn) ListResourcesByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Resource, error) {
	return c.listResources(ctx, " WHERE u.company_id = ?", companyID)
}

func (c conn) UpdateResource(ctx context.Context, r workload.Resource) error {
	if err := c.updatePerson(ctx, int64(r.ID), r.Person); err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE resource_profiles SET
			experience = ?, weekly_availability = ?, hourly_cost = ?,
			current_load = ?, avg_skill = ?, score = ?, cluster = ?
		WHERE resource_id = ?`,
		r.Experience, r.WeeklyAvailability, r.HourlyCost.String(),
		r.CurrentLoad, r.AvgSkill, r.Score, r.Cluster, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	return requireRow(res, workload.ErrResourceNotFound)
}

func (c conn) DeleteResource(ctx context.Context, id workload.ResourceID) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM resource_profiles WHERE resource_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete resource profile: %w", err)
	}
	res, err := c.q.ExecContext(ctx, "DELETE FROM users WHERE id = ? AND role = 'member'", id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return requireRow(res, workload.ErrResourceNotFound)
}

// =============================================================================
// PROJECTS
// =============================================================================

func (s *Store) CreateProject(ctx context.Context, p workload.Project) (workload.ProjectID, error) {
	c, done := s.write()
	defer done()
	return c.CreateProject(ctx, p)
}

func (s *Store) GetProject(ctx context.Context, id workload.ProjectID) (*workload.Project, error) {
	c, done := s.read()
	defer done()
	return c.GetProject(ctx, id)
}

func (s *Store) ListProjects(ctx context.Context) ([]workload.Project, error) {
	c, done := s.read()
	defer done()
	return c.ListProjects(ctx)
}

func (s *Store) ListProjectsByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Project, error) {
	c, done := s.read()
	defer done()
	return c.ListProjectsByManager(ctx, managerID)
}

func (s *Store) ListProjectsByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Project, error) {
	c, done := s.read()
	defer done()
	return c.ListProjectsByCompany(ctx, companyID)
}

func (s *Store) UpdateProject(ctx context.Context, p workload.Project) error {
	c, done := s.write()
	defer done()
	return c.UpdateProject(ctx, p)
}

func (s *Store) SetProjectLifecycle(ctx context.Context, id workload.ProjectID, lc workload.Lifecycle) error {
	c, done := s.write()
	defer done()
	return c.SetProjectLifecycle(ctx, id, lc)
}

func (s *Store) DeleteProject(ctx context.Context, id workload.ProjectID) error {
	c, done := s.write()
	defer done()
	return c.DeleteProject(ctx, id)
}

const projectColumns = `
	id, company_id, manager_id, name, description, difficulty, estimated_hours,
	start_date, end_date, status, days_remaining, created_at`

func scanProject(row interface{ Scan(...any) error }) (workload.Project, error) {
	var (
		p                        workload.Project
		difficulty               string
		start, end, status, made string
	)
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.ManagerID, &p.Name, &p.Description, &difficulty,
		&p.EstimatedHours, &start, &end, &status, &p.DaysRemaining, &made,
	)
	if err != nil {
		return p, err
	}
	p.Difficulty = workload.Difficulty(difficulty)
	if p.Start, err = workload.ParseDate(start); err != nil {
		return p, err
	}
	if p.End, err = workload.ParseDate(end); err != nil {
		return p, err
	}
	if p.Status, err = workload.ParseStatus(status); err != nil {
		return p, err
	}
	p.CreatedAt = parseTimestamp(made)
	return p, nil
}

func (c conn) CreateProject(ctx context.Context, p workload.Project) (workload.ProjectID, error) {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO projects
		(company_id, manager_id, name, description, difficulty, estimated_hours,
		 start_date, end_date, duration_days, status, days_remaining, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.CompanyID, p.ManagerID, p.Name, p.Description, string(p.Difficulty), p.EstimatedHours,
		p.Start.String(), p.End.String(), p.Duration(), p.Status.String(), p.DaysRemaining,
		now(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("create project: %w", workload.ErrManagerNotFound)
		}
		return 0, fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return workload.ProjectID(id), nil
}

func (c conn) GetProject(ctx context.Context, id workload.ProjectID) (*workload.Project, error) {
	row := c.q.QueryRowContext(ctx, "SELECT"+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return &p, nil
}

func (c conn) listProjects(ctx context.Context, where string, args ...any) ([]workload.Project, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT"+projectColumns+" FROM projects"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []workload.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (c conn) ListProjects(ctx context.Context) ([]workload.Project, error) {
	return c.listProjects(ctx, "")
}

func (c conn) ListProjectsByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Project, error) {
	return c.listProjects(ctx, " WHERE manager_id = ?", managerID)
}

func (c conn) ListProjectsByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Project, error) {
	return c.listProjects(ctx, " WHERE company_id = ?", companyID)
}

func (c conn) UpdateProject(ctx context.Context, p workload.Project) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE projects SET
			name = ?, description = ?, difficulty = ?, estimated_hours = ?,
			start_date = ?, end_date = ?, duration_days = ?, status = ?, days_remaining = ?
		WHERE id = ?`,
		p.Name, p.Description, string(p.Difficulty), p.EstimatedHours,
		p.Start.String(), p.End.String(), p.Duration(), p.Status.String(), p.DaysRemaining,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireRow(res, workload.ErrProjectNotFound)
}

func (c conn) SetProjectLifecycle(ctx context.Context, id workload.ProjectID, lc workload.Lifecycle) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE projects SET status = ?, days_remaining = ? WHERE id = ?",
		lc.Status.String(), lc.DaysRemaining, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set project lifecycle: %w", err)
	}
	return requireRow(res, workload.ErrProjectNotFound)
}

func (c conn) DeleteProject(ctx context.Context, id workload.ProjectID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireRow(res, workload.ErrProjectNotFound)
}

// =============================================================================
// RECALCULATION RUNS (workload.RunStore interface)
// =============================================================================

// SaveRecalculationRun inserts or replaces a run record.
func (s *Store) SaveRecalculationRun(ctx context.Context, run workload.RecalculationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt sql.NullString
	if !run.CompletedAt.IsZero() {
		completedAt = sql.NullString{String: run.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recalculation_runs
		(id, today, status, projects_scanned, projects_advanced, managers_scanned,
		 managers_updated, failures, errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			projects_scanned = excluded.projects_scanned,
			projects_advanced = excluded.projects_advanced,
			managers_scanned = excluded.managers_scanned,
			managers_updated = excluded.managers_updated,
			failures = excluded.failures,
			errors = excluded.errors,
			completed_at = excluded.completed_at`,
		run.ID, run.Today.String(), string(run.Status), run.ProjectsScanned, run.ProjectsAdvanced,
		run.ManagersScanned, run.ManagersUpdated, run.Failures, strings.Join(run.Errors, "\n"),
		run.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recalculation run: %w", err)
	}
	return nil
}

// ListRecalculationRuns returns the newest runs first. limit <= 0 means all.
func (s *Store) ListRecalculationRuns(ctx context.Context, limit int) ([]workload.RecalculationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, today, status, projects_scanned, projects_advanced, managers_scanned,
		       managers_updated, failures, errors, started_at, completed_at
		FROM recalculation_runs
		ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recalculation runs: %w", err)
	}
	defer rows.Close()

	var runs []workload.RecalculationRun
	for rows.Next() {
		var (
			run                   workload.RecalculationRun
			today, status, errors string
			startedAt             string
			completedAt           sql.NullString
		)
		if err := rows.Scan(&run.ID, &today, &status, &run.ProjectsScanned, &run.ProjectsAdvanced,
			&run.ManagersScanned, &run.ManagersUpdated, &run.Failures, &errors,
			&startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recalculation run: %w", err)
		}
		run.Today, _ = workload.ParseDate(today)
		run.Status = workload.RunStatus(status)
		if errors != "" {
			run.Errors = strings.Split(errors, "\n")
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
