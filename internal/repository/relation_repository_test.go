package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

func TestRelationRepositoryAddToSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE branches SET course_ids = array_append(course_ids, $1), updated_at = $3 WHERE id = ANY($2) AND NOT ($1 = ANY(course_ids))")).
		WithArgs("c1", "{\"b1\",\"b2\"}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.AddToSet(context.Background(), nil, models.CourseBranches, "c1", []string{"b1", "b2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepositoryPull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET person_ids = array_remove(person_ids, $1), updated_at = $3 WHERE id = ANY($2) AND $1 = ANY(person_ids)")).
		WithArgs("p1", "{\"c9\"}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Pull(context.Background(), nil, models.PersonCourses, "p1", []string{"c9"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepositoryPullAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE persons SET branch_ids = array_remove(branch_ids, $1), updated_at = $2 WHERE $1 = ANY(branch_ids)")).
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.PullAll(context.Background(), nil, models.BranchPersons, "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepositoryRejectsUndeclaredRelation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	bogus := models.RelationSpec{Name: "users", Target: "users; DROP TABLE users", Field: "x"}
	assert.Error(t, repo.AddToSet(context.Background(), nil, bogus, "s", []string{"t"}))
	assert.Error(t, repo.Pull(context.Background(), nil, bogus, "s", []string{"t"}))
	_, err := repo.ExistingIDs(context.Background(), nil, bogus, []string{"t"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationRepositoryEmptyTargetsIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRelationRepository(db)

	require.NoError(t, repo.AddToSet(context.Background(), nil, models.BranchCourses, "b1", nil))
	require.NoError(t, repo.Pull(context.Background(), nil, models.BranchCourses, "b1", []string{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
