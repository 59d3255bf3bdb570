// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements workload.TxStore and workload.RunStore.
type Memory struct {
	mu   sync.RWMutex
	data memData
	runs []workload.RecalculationRun
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

// memData holds the tables. Its methods assume the caller holds the lock,
// which lets WithTx hand &m.data to the callback as the transactional view.
type memData struct {
	nextUser    int64
	nextProject int64
	managers    map[workload.ManagerID]workload.Manager
	resources   map[workload.ResourceID]workload.Resource
	projects    map[workload.ProjectID]workload.Project
	emails      map[string]int64
}

func newMemData() memData {
	return memData{
		managers:  make(map[workload.ManagerID]workload.Manager),
		resources: make(map[workload.ResourceID]workload.Resource),
		projects:  make(map[workload.ProjectID]workload.Project),
		emails:    make(map[string]int64),
	}
}

func (d *memData) clone() memData {
	c := memData{
		nextUser:    d.nextUser,
		nextProject: d.nextProject,
		managers:    make(map[workload.ManagerID]workload.Manager, len(d.managers)),
		resources:   make(map[workload.ResourceID]workload.Resource, len(d.resources)),
		projects:    make(map[workload.ProjectID]workload.Project, len(d.projects)),
		emails:      make(map[string]int64, len(d.emails)),
	}
	for k, v := range d.managers {
		c.managers[k] = v
	}
	for k, v := range d.resources {
		c.resources[k] = v
	}
	for k, v := range d.projects {
		c.projects[k] = v
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error or panic.
func (m *Memory) WithTx(ctx context.Context, fn func(workload.Store) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	defer func() {
		if rec := recover(); rec != nil {
			m.data = snapshot
			panic(rec)
		}
	}()

	if err := fn(&m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) CreateManager(ctx context.Context, mg workload.Manager) (workload.ManagerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateManager(ctx, mg)
}

func (m *Memory) GetManager(ctx context.Context, id workload.ManagerID) (*workload.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetManager(ctx, id)
}

func (m *Memory) ListManagers(ctx context.Context) ([]workload.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListManagers(ctx)
}

func (m *Memory) ListManagersByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Manager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListManagersByCompany(ctx, companyID)
}

func (m *Memory) UpdateManager(ctx context.Context, mg workload.Manager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateManager(ctx, mg)
}

func (m *Memory) SetManagerCharge(ctx context.Context, id workload.ManagerID, charge decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetManagerCharge(ctx, id, charge)
}

func (m *Memory) DeleteManager(ctx context.Context, id workload.ManagerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteManager(ctx, id)
}

func (m *Memory) CreateResource(ctx context.Context, r workload.Resource) (workload.ResourceID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateResource(ctx, r)
}

func (m *Memory) GetResource(ctx context.Context, id workload.ResourceID) (*workload.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetResource(ctx, id)
}

func (m *Memory) ListResourcesByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListResourcesByManager(ctx, managerID)
}

func (m *Memory) ListResourcesByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListResourcesByCompany(ctx, companyID)
}

func (m *Memory) UpdateResource(ctx context.Context, r workload.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateResource(ctx, r)
}

func (m *Memory) DeleteResource(ctx context.Context, id workload.ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteResource(ctx, id)
}

func (m *Memory) CreateProject(ctx context.Context, p workload.Project) (workload.ProjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateProject(ctx, p)
}

func (m *Memory) GetProject(ctx context.Context, id workload.ProjectID) (*workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetProject(ctx, id)
}

func (m *Memory) ListProjects(ctx context.Context) ([]workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListProjects(ctx)
}

func (m *Memory) ListProjectsByManager(ctx context.Context, managerID workload.ManagerID) ([]workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListProjectsByManager(ctx, managerID)
}

func (m *Memory) ListProjectsByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListProjectsByCompany(ctx, companyID)
}

func (m *Memory) UpdateProject(ctx context.Context, p workload.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateProject(ctx, p)
}

func (m *Memory) SetProjectLifecycle(ctx context.Context, id workload.ProjectID, lc workload.Lifecycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetProjectLifecycle(ctx, id, lc)
}

func (m *Memory) DeleteProject(ctx context.Context, id workload.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteProject(ctx, id)
}

// =============================================================================
// RUN STORE
// =============================================================================

// SaveRecalculationRun inserts or replaces a run by ID.
func (m *Memory) SaveRecalculationRun(_ context.Context, run workload.RecalculationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRecalculationRuns returns the newest runs first.
func (m *Memory) ListRecalculationRuns(_ context.Context, limit int) ([]workload.RecalculationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.RecalculationRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

// =============================================================================
// UNLOCKED TABLE OPERATIONS (workload.Store on *memData)
// =============================================================================

func (d *memData) claimEmail(email string, owner int64) error {
	key := strings.ToLower(email)
	if existing, ok := d.emails[key]; ok && existing != owner {
		return workload.ErrDuplicateEmail
	}
	d.emails[key] = owner
	return nil
}

func (d *memData) releaseEmail(email string) {
	delete(d.emails, strings.ToLower(email))
}

func (d *memData) CreateManager(_ context.Context, m workload.Manager) (workload.ManagerID, error) {
	d.nextUser++
	id := d.nextUser
	if err := d.claimEmail(m.Person.Email, id); err != nil {
		d.nextUser--
		return 0, err
	}
	m.ID = workload.ManagerID(id)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	d.managers[m.ID] = m
	return m.ID, nil
}

func (d *memData) GetManager(_ context.Context, id workload.ManagerID) (*workload.Manager, error) {
	m, ok := d.managers[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *memData) ListManagers(_ context.Context) ([]workload.Manager, error) {
	out := make([]workload.Manager, 0, len(d.managers))
	for _, m := range d.managers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memData) ListManagersByCompany(ctx context.Context, companyID workload.CompanyID) ([]workload.Manager, error) {
	all, _ := d.ListManagers(ctx)
	out := all[:0]
	for _, m := range all {
		if m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *memData) UpdateManager(_ context.Context, m workload.Manager) error {
	old, ok := d.managers[m.ID]
	if !ok {
		return workload.ErrManagerNotFound
	}
	if !strings.EqualFold(old.Person.Email, m.Person.Email) {
		if err := d.claimEmail(m.Person.Email, int64(m.ID)); err != nil {
			return err
		}
		d.releaseEmail(old.Person.Email)
	}
	if m.Person.PasswordHash == "" {
		m.Person.PasswordHash = old.Person.PasswordHash
	}
	// Charge is derived; only SetManagerCharge writes it.
	m.Charge = old.Charge
	m.CreatedAt = old.CreatedAt
	d.managers[m.ID] = m
	return nil
}

func (d *memData) SetManagerCharge(_ context.Context, id workload.ManagerID, charge decimal.Decimal) error {
	m, ok := d.managers[id]
	if !ok {
		return workload.ErrManagerNotFound
	}
	m.Charge = charge
	d.managers[id] = m
	return nil
}

func (d *memData) DeleteManager(_ context.Context, id workload.ManagerID) error {
	m, ok := d.managers[id]
	if !ok {
		return workload.ErrManagerNotFound
	}
	d.releaseEmail(m.Person.Email)
	delete(d.managers, id)
	return nil
}

func (d *memData) CreateResource(_ context.Context, r workload.Resource) (workload.ResourceID, error) {
	if _, ok := d.managers[r.ManagerID]; !ok {
		return 0, fmt.Errorf("create resource: %w", workload.ErrManagerNotFound)
	}
	d.nextUser++
	id := d.nextUser
	if err := d.claimEmail(r.Person.Email, id); err != nil {
		d.nextUser--
		return 0, err
	}
	r.ID = workload.ResourceID(id)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	d.resources[r.ID] = r
	return r.ID, nil
}

func (d *memData) GetResource(_ context.Context, id workload.ResourceID) (*workload.Resource, error) {
	r, ok := d.resources[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (d *memData) sortedResources(keep func(workload.Resource) bool) []workload.Resource {
	out := make([]workload.Resource, 0)
	for _, r := range d.resources {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *memData) ListResourcesByManager(_ context.Context, managerID workload.ManagerID) ([]workload.Resource, error) {
	return d.sortedResources(func(r workload.Resource) bool { return r.ManagerID == managerID }), nil
}

func (d *memData) ListResourcesByCompany(_ context.Context, companyID workload.CompanyID) ([]workload.Resource, error) {
	return d.sortedResources(func(r workload.Resource) bool { return r.CompanyID == companyID }), nil
}

func (d *memData) UpdateResource(_ context.Context, r workload.Resource) error {
	old, ok := d.resources[r.ID]
	if !ok {
		return workload.ErrResourceNotFound
	}
	if !strings.EqualFold(old.Person.Email, r.Person.Email) {
		if err := d.claimEmail(r.Person.Email, int64(r.ID)); err != nil {
			return err
		}
		d.releaseEmail(old.Person.Email)
	}
	if r.Person.PasswordHash == "" {
		r.Person.PasswordHash = old.Person.PasswordHash
	}
	r.ManagerID = old.ManagerID
	r.CompanyID = old.CompanyID
	r.CreatedAt = old.CreatedAt
	d.resources[r.ID] = r
	return nil
}

func (d *memData) DeleteResource(_ context.Context, id workload.ResourceID) error {
	r, ok := d.resources[id]
	if !ok {
		return workload.ErrResourceNotFound
	}
	d.releaseEmail(r.Person.Email)
	delete(d.resources, id)
	return nil
}

func (d *memData) CreateProject(_ context.Context, p workload.Project) (workload.ProjectID, error) {
	if _, ok := d.managers[p.ManagerID]; !ok {
		return 0, fmt.Errorf("create project: %w", workload.ErrManagerNotFound)
	}
	d.nextProject++
	p.ID = workload.ProjectID(d.nextProject)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	d.projects[p.ID] = p
	return p.ID, nil
}

func (d *memData) GetProject(_ context.Context, id workload.ProjectID) (*workload.Project, error) {
	p, ok := d.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *memData) sortedProjects(keep func(workload.Project) bool) []workload.Project {
	out := make([]workload.Project, 0)
	for _, p := range d.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *memData) ListProjects(_ context.Context) ([]workload.Project, error) {
	return d.sortedProjects(func(workload.Project) bool { return true }), nil
}

func (d *memData) ListProjectsByManager(_ context.Context, managerID workload.ManagerID) ([]workload.Project, error) {
	return d.sortedProjects(func(p workload.Project) bool { return p.ManagerID == managerID }), nil
}

func (d *memData) ListProjectsByCompany(_ context.Context, companyID workload.CompanyID) ([]workload.Project, error) {
	return d.sortedProjects(func(p workload.Project) bool { return p.CompanyID == companyID }), nil
}

func (d *memData) UpdateProject(_ context.Context, p workload.Project) error {
	old, ok := d.projects[p.ID]
	if !ok {
		return workload.ErrProjectNotFound
	}
	p.ManagerID = old.ManagerID
	p.CompanyID = old.CompanyID
	p.CreatedAt = old.CreatedAt
	d.projects[p.ID] = p
	return nil
}

func (d *memData) SetProjectLifecycle(_ context.Context, id workload.ProjectID, lc workload.Lifecycle) error {
	p, ok := d.projects[id]
	if !ok {
		return workload.ErrProjectNotFound
	}
	p.Status = lc.Status
	p.DaysRemaining = lc.DaysRemaining
	d.projects[id] = p
	return nil
}

func (d *memData) DeleteProject(_ context.Context, id workload.ProjectID) error {
	if _, ok := d.projects[id]; !ok {
		return workload.ErrProjectNotFound
	}
	delete(d.projects, id)
	return nil
}
