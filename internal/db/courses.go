package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// CourseRepository resolves feed course identifiers to local course rows.
type CourseRepository interface {
	FindByELMID(ctx context.Context, elmCourseID string) (*model.Course, error)
}

type courseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) CourseRepository {
	return &courseRepository{db: db}
}

// FindByELMID returns (nil, nil) for blank or non-numeric identifiers so
// malformed feed rows classify as course-not-found instead of erroring the
// whole batch.
func (r *courseRepository) FindByELMID(ctx context.Context, elmCourseID string) (*model.Course, error) {
	elmCourseID = strings.TrimSpace(elmCourseID)
	if elmCourseID == "" {
		return nil, nil
	}
	if _, err := strconv.ParseInt(elmCourseID, 10, 64); err != nil {
		return nil, nil
	}

	query := `SELECT id, elm_course_id, shortname, fullname, visible FROM courses WHERE elm_course_id = ?`

	var c model.Course
	err := r.db.QueryRowContext(ctx, query, elmCourseID).Scan(
		&c.ID, &c.ELMCourseID, &c.ShortName, &c.FullName, &c.Visible,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
