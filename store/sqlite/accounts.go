package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/workload-engine/workload"
)

// =============================================================================
// ACCOUNTS (workload.AccountStore interface)
// =============================================================================

// RegisterCompany creates a company and its HR user in one transaction.
func (s *Store) RegisterCompany(ctx context.Context, name string, hr workload.Person) (workload.Company, workload.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		company workload.Company
		user    workload.User
	)
	err := s.withTxLocked(ctx, func(c conn) error {
		createdAt := now()
		res, err := c.q.ExecContext(ctx,
			"INSERT INTO companies (name, created_at) VALUES (?, ?)",
			strings.TrimSpace(name), createdAt,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return workload.ErrDuplicateCompany
			}
			return fmt.Errorf("failed to insert company: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		company = workload.Company{
			ID:        workload.CompanyID(id),
			Name:      strings.TrimSpace(name),
			CreatedAt: parseTimestamp(createdAt),
		}

		userID, err := c.insertUser(ctx, company.ID, hr, workload.RoleHR)
		if err != nil {
			return err
		}
		user = workload.User{
			ID:        userID,
			CompanyID: company.ID,
			Person:    hr,
			Role:      workload.RoleHR,
			CreatedAt: company.CreatedAt,
		}
		return nil
	})
	return company, user, err
}

func (s *Store) GetCompany(ctx context.Context, id workload.CompanyID) (*workload.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		company   workload.Company
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM companies WHERE id = ?", id,
	).Scan(&company.ID, &company.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company %d: %w", id, err)
	}
	company.CreatedAt = parseTimestamp(createdAt)
	return &company, nil
}

const userColumns = `id, company_id, first_name, last_name, email, password_hash, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (workload.User, error) {
	var (
		u               workload.User
		role, createdAt string
	)
	if err := row.Scan(&u.ID, &u.CompanyID, &u.Person.FirstName, &u.Person.LastName,
		&u.Person.Email, &u.Person.PasswordHash, &role, &createdAt); err != nil {
		return u, err
	}
	r, err := workload.ParseRole(role)
	if err != nil {
		return u, err
	}
	u.Role = r
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*workload.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserByEmail matches case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*workload.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE",
		strings.TrimSpace(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// Statistics aggregates one company. The average charge is over managers
// and rounded to 2 places.
func (s *Store) Statistics(ctx context.Context, companyID workload.CompanyID) (workload.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats workload.Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN role = 'manager' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN role = 'member' THEN 1 ELSE 0 END), 0)
		FROM users WHERE company_id = ?`, companyID,
	).Scan(&stats.Managers, &stats.Resources)
	if err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM projects WHERE company_id = ? GROUP BY status", companyID)
	if err != nil {
		return stats, fmt.Errorf("failed to count projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		switch status {
		case "planned":
			stats.PlannedProjects = n
		case "active":
			stats.ActiveProjects = n
		case "finished":
			stats.FinishedProjects = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	// Charges are stored as decimal text; sum them in Go to stay exact.
	charges, err := s.db.QueryContext(ctx, `
		SELECT mp.charge FROM manager_profiles mp
		JOIN users u ON u.id = mp.manager_id
		WHERE u.company_id = ?`, companyID)
	if err != nil {
		return stats, fmt.Errorf("failed to load charges: %w", err)
	}
	defer charges.Close()

	total := decimal.Zero
	count := 0
	for charges.Next() {
		var c string
		if err := charges.Scan(&c); err != nil {
			return stats, err
		}
		total = total.Add(parseDecimal(c))
		count++
	}
	if err := charges.Err(); err != nil {
		return stats, err
	}
	stats.AverageCharge = decimal.Zero
	if count > 0 {
		stats.AverageCharge = total.Div(decimal.NewFromInt(int64(count))).Round(2)
	}
	return stats, nil
}

// =============================================================================
// USER ROWS
// =============================================================================

func (c conn) insertUser(ctx context.Context, companyID workload.CompanyID, p workload.Person, role workload.Role) (int64, error) {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO users (company_id, first_name, last_name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		companyID, p.FirstName, p.LastName, strings.TrimSpace(p.Email), p.PasswordHash, role.String(), now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, workload.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return res.LastInsertId()
}

// updatePerson rewrites the identity columns. An empty password hash keeps
// the stored one.
func (c conn) updatePerson(ctx context.Context, id int64, p workload.Person) error {
	_, err := c.q.ExecContext(ctx, `
		UPDATE users SET
			first_name = ?, last_name = ?, email = ?,
			password_hash = CASE WHEN ? = '' THEN password_hash ELSE ? END
		WHERE id = ?`,
		p.FirstName, p.LastName, strings.TrimSpace(p.Email), p.PasswordHash, p.PasswordHash, id,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return workload.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
