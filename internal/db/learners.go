package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// LearnerRepository is the narrow view of the local user store the engine
// needs: lookup by the ELM GUID, lookup by email, and creation. Not-found
// is (nil, nil), never an error.
type LearnerRepository interface {
	FindByGUID(ctx context.Context, guid string) (*model.Learner, error)
	FindByEmail(ctx context.Context, email string) (*model.Learner, error)
	Create(ctx context.Context, learner *model.Learner) error
}

type learnerRepository struct {
	db *sql.DB
}

func NewLearnerRepository(db *sql.DB) LearnerRepository {
	return &learnerRepository{db: db}
}

const learnerColumns = `id, guid, username, email, first_name, last_name, confirmed, created_at`

func (r *learnerRepository) FindByGUID(ctx context.Context, guid string) (*model.Learner, error) {
	if guid == "" {
		return nil, nil
	}
	query := `SELECT ` + learnerColumns + ` FROM learners WHERE guid = ?`
	return r.scanOne(ctx, query, guid)
}

func (r *learnerRepository) FindByEmail(ctx context.Context, email string) (*model.Learner, error) {
	if email == "" {
		return nil, nil
	}
	query := `SELECT ` + learnerColumns + ` FROM learners WHERE LOWER(email) = LOWER(?)`
	return r.scanOne(ctx, query, email)
}

func (r *learnerRepository) scanOne(ctx context.Context, query string, arg interface{}) (*model.Learner, error) {
	var l model.Learner
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&l.ID, &l.GUID, &l.Username, &l.Email,
		&l.FirstName, &l.LastName, &l.Confirmed, &l.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *learnerRepository) Create(ctx context.Context, learner *model.Learner) error {
	query := `INSERT INTO learners (guid, username, email, first_name, last_name, confirmed, password_hash, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`

	res, err := r.db.ExecContext(ctx, query,
		learner.GUID, learner.Username, learner.Email,
		learner.FirstName, learner.LastName, learner.Confirmed, learner.PasswordHash,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return apperrors.ErrDuplicateEmail
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	learner.ID = id
	return nil
}
