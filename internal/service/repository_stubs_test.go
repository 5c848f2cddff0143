package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-scheduler-api/internal/models"
)

const (
	instructorA = "11111111-1111-4111-8111-111111111111"
	instructorB = "22222222-2222-4222-8222-222222222222"
	inspectorA  = "33333333-3333-4333-8333-333333333333"
	courseGo    = "44444444-4444-4444-8444-444444444444"
	courseSQL   = "55555555-5555-4555-8555-555555555555"
	branchNorth = "66666666-6666-4666-8666-666666666666"
	branchSouth = "77777777-7777-4777-8777-777777777777"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (p *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

// stubBatchRepo keeps batches in memory and answers overlap queries the way
// the SQL repository does.
type stubBatchRepo struct {
	batches       map[string]*models.Batch
	seq           int
	statusUpdates map[string]models.BatchStatus
	busy          []string
	busyCalls     int
	counts        map[string]int
	// stale, when set, is what unlocked reads return for a batch.
	stale map[string]models.Batch
}

func newStubBatchRepo(batches ...models.Batch) *stubBatchRepo {
	repo := &stubBatchRepo{batches: map[string]*models.Batch{}, statusUpdates: map[string]models.BatchStatus{}, counts: map[string]int{}}
	for i := range batches {
		b := batches[i]
		repo.batches[b.ID] = &b
	}
	return repo
}

func (r *stubBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, error) {
	var out []models.Batch
	for _, b := range r.batches {
		if filter.PersonID != "" && b.PersonID != filter.PersonID {
			continue
		}
		if filter.Window != nil && !b.Range().Overlaps(*filter.Window) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Newest {
			return out[i].FromDate.After(out[j].FromDate)
		}
		return out[i].FromDate.Before(out[j].FromDate)
	})
	return out, nil
}

func (r *stubBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := r.stale[id]; ok {
		return &b, nil
	}
	return r.FindForUpdate(ctx, nil, id)
}

func (r *stubBatchRepo) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *b
	return &copy, nil
}

func (r *stubBatchRepo) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, filter models.BatchOverlapFilter) ([]models.Batch, error) {
	var out []models.Batch
	for _, b := range r.batches {
		if b.PersonID != filter.PersonID || b.ID == filter.ExcludeID {
			continue
		}
		if filter.CourseID != "" && b.CourseID != filter.CourseID {
			continue
		}
		if filter.BranchID != "" && (b.BranchID == nil || *b.BranchID != filter.BranchID) {
			continue
		}
		if b.Range().Overlaps(filter.Range) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *stubBatchRepo) BusyPersonIDs(ctx context.Context, window models.DateRange) ([]string, error) {
	r.busyCalls++
	return r.busy, nil
}

func (r *stubBatchRepo) CountByPerson(ctx context.Context, personID string) (int, error) {
	return r.counts[personID], nil
}

func (r *stubBatchRepo) CountByCourse(ctx context.Context, courseID string) (int, error) {
	return r.counts[courseID], nil
}

func (r *stubBatchRepo) CountByBranch(ctx context.Context, branchID string) (int, error) {
	return r.counts[branchID], nil
}

func (r *stubBatchRepo) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	r.seq++
	batch.ID = fmt.Sprintf("batch-%d", r.seq)
	copy := *batch
	r.batches[batch.ID] = &copy
	return nil
}

func (r *stubBatchRepo) Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	copy := *batch
	r.batches[batch.ID] = &copy
	return nil
}

func (r *stubBatchRepo) UpdateStatus(ctx context.Context, id string, window models.DateRange, status models.BatchStatus) error {
	b, ok := r.batches[id]
	if !ok || !b.FromDate.Equal(window.From) || !b.ToDate.Equal(window.To) {
		return nil
	}
	r.statusUpdates[id] = status
	b.Status = status
	return nil
}

func (r *stubBatchRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id, personID string) (bool, error) {
	b, ok := r.batches[id]
	if !ok || b.PersonID != personID {
		return false, nil
	}
	delete(r.batches, id)
	return true, nil
}

// stubPersonRepo stores persons in memory; AdjustTotalBatches floors at zero
// like the SQL statement.
type stubPersonRepo struct {
	persons map[string]*models.Person
	stale   map[string]models.Person
	locked  []string
	deltas  map[string][]int
	created []*models.Person
	deleted []string
}

func newStubPersonRepo(persons ...models.Person) *stubPersonRepo {
	repo := &stubPersonRepo{persons: map[string]*models.Person{}, deltas: map[string][]int{}}
	for i := range persons {
		p := persons[i]
		repo.persons[p.ID] = &p
	}
	return repo
}

func (r *stubPersonRepo) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	var out []models.Person
	for _, p := range r.persons {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *stubPersonRepo) ListQualified(ctx context.Context, role models.PersonRole, courseID, branchID string) ([]models.Person, error) {
	out := []models.Person{}
	for _, p := range r.persons {
		if p.Role != role || !contains(p.CourseIDs, courseID) {
			continue
		}
		if branchID != "" && !contains(p.BranchIDs, branchID) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *stubPersonRepo) FindByID(ctx context.Context, id string) (*models.Person, error) {
	if p, ok := r.stale[id]; ok {
		return &p, nil
	}
	return r.FindForUpdate(ctx, nil, id)
}

func (r *stubPersonRepo) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Person, error) {
	p, ok := r.persons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (r *stubPersonRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	for id, p := range r.persons {
		if id != excludeID && p.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubPersonRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range r.persons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *stubPersonRepo) Lock(ctx context.Context, exec sqlx.ExtContext, id string) (models.PersonRole, error) {
	p, ok := r.persons[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	r.locked = append(r.locked, id)
	return p.Role, nil
}

func (r *stubPersonRepo) AdjustTotalBatches(ctx context.Context, exec sqlx.ExtContext, id string, delta int) error {
	r.deltas[id] = append(r.deltas[id], delta)
	if p, ok := r.persons[id]; ok {
		p.TotalBatches += delta
		if p.TotalBatches < 0 {
			p.TotalBatches = 0
		}
	}
	return nil
}

func (r *stubPersonRepo) Create(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error {
	if person.ID == "" {
		person.ID = instructorB
	}
	copy := *person
	r.persons[person.ID] = &copy
	r.created = append(r.created, &copy)
	return nil
}

func (r *stubPersonRepo) Update(ctx context.Context, exec sqlx.ExtContext, person *models.Person) error {
	copy := *person
	r.persons[person.ID] = &copy
	return nil
}

func (r *stubPersonRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(r.persons, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type stubCourseRepo struct {
	courses map[string]*models.Course
	stale   map[string]models.Course
	deleted []string
}

func newStubCourseRepo(courses ...models.Course) *stubCourseRepo {
	repo := &stubCourseRepo{courses: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		repo.courses[c.ID] = &c
	}
	return repo
}

func (r *stubCourseRepo) List(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	for _, c := range r.courses {
		out = append(out, *c)
	}
	return out, nil
}

func (r *stubCourseRepo) ListByBranch(ctx context.Context, branchID string) ([]models.Course, error) {
	var out []models.Course
	for _, c := range r.courses {
		if contains(c.BranchIDs, branchID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubCourseRepo) ListRefs(ctx context.Context, ids []string) ([]models.CourseRef, error) {
	refs := []models.CourseRef{}
	for _, id := range ids {
		if c, ok := r.courses[id]; ok {
			refs = append(refs, models.CourseRef{ID: c.ID, Name: c.Name})
		}
	}
	return refs, nil
}

func (r *stubCourseRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range r.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := r.stale[id]; ok {
		return &c, nil
	}
	return r.FindForUpdate(ctx, nil, id)
}

func (r *stubCourseRepo) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	c, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (r *stubCourseRepo) Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if course.ID == "" {
		course.ID = courseSQL
	}
	copy := *course
	r.courses[course.ID] = &copy
	return nil
}

func (r *stubCourseRepo) Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	copy := *course
	r.courses[course.ID] = &copy
	return nil
}

func (r *stubCourseRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(r.courses, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type stubBranchRepo struct {
	branches map[string]*models.Branch
	stale    map[string]models.Branch
}

func newStubBranchRepo(branches ...models.Branch) *stubBranchRepo {
	repo := &stubBranchRepo{branches: map[string]*models.Branch{}}
	for i := range branches {
		b := branches[i]
		repo.branches[b.ID] = &b
	}
	return repo
}

func (r *stubBranchRepo) List(ctx context.Context) ([]models.Branch, error) {
	var out []models.Branch
	for _, b := range r.branches {
		out = append(out, *b)
	}
	return out, nil
}

func (r *stubBranchRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range r.branches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *stubBranchRepo) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	if b, ok := r.stale[id]; ok {
		return &b, nil
	}
	return r.FindForUpdate(ctx, nil, id)
}

func (r *stubBranchRepo) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Branch, error) {
	b, ok := r.branches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *b
	return &copy, nil
}

func (r *stubBranchRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	for id, b := range r.branches {
		if id != excludeID && b.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubBranchRepo) Create(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = branchSouth
	}
	copy := *branch
	r.branches[branch.ID] = &copy
	return nil
}

func (r *stubBranchRepo) Update(ctx context.Context, exec sqlx.ExtContext, branch *models.Branch) error {
	copy := *branch
	r.branches[branch.ID] = &copy
	return nil
}

func (r *stubBranchRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(r.branches, id)
	return nil
}

// stubRelationStore records synchronisation calls and treats every ID in
// known as an existing target.
type stubRelationStore struct {
	known    map[string]bool
	added    map[string][]string
	pulled   map[string][]string
	detached map[string][]string
}

func newStubRelationStore(known ...string) *stubRelationStore {
	store := &stubRelationStore{known: map[string]bool{}, added: map[string][]string{}, pulled: map[string][]string{}, detached: map[string][]string{}}
	for _, id := range known {
		store.known[id] = true
	}
	return store
}

func (s *stubRelationStore) AddToSet(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error {
	s.added[spec.Name] = append(s.added[spec.Name], targetIDs...)
	return nil
}

func (s *stubRelationStore) Pull(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string, targetIDs []string) error {
	s.pulled[spec.Name] = append(s.pulled[spec.Name], targetIDs...)
	return nil
}

func (s *stubRelationStore) PullAll(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, sourceID string) error {
	s.detached[spec.Name] = append(s.detached[spec.Name], sourceID)
	return nil
}

func (s *stubRelationStore) ExistingIDs(ctx context.Context, exec sqlx.ExtContext, spec models.RelationSpec, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		if s.known[id] {
			found = append(found, id)
		}
	}
	return found, nil
}

type stubAuditWriter struct {
	logs []*models.AuditLog
}

func (w *stubAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	w.logs = append(w.logs, log)
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
