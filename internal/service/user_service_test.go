package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listUsers []models.User
	listCount int
	listErr   error
	auditLogs []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listUsers, m.listCount, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	for id, u := range m.users {
		if id != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 10, pagination.PageSize)
}

func TestUserServiceRegisterDefaults(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())

	user, err := svc.Register(context.Background(), models.CreateUserRequest{
		Email:     "USER@EXAMPLE.COM",
		Password:  "secret1",
		FirstName: "Ari",
		Phone:     "+62 8123456789",
	}, AuditMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, models.RoleScheduler, user.Role)
	assert.Equal(t, "UTC", user.TimeZone)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, "admin", *repo.auditLogs[0].UserID)
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "user@example.com"}}}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())

	_, err := svc.Register(context.Background(), models.CreateUserRequest{Email: "user@example.com", Password: "secret1", FirstName: "Ari"}, AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceRegisterRejectsBadPhone(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, NewValidator(), zap.NewNop())

	_, err := svc.Register(context.Background(), models.CreateUserRequest{Email: "x@example.com", Password: "secret1", FirstName: "Ari", Phone: "0123"}, AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FirstName: "Old", Role: models.RoleScheduler, Active: true}}}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())
	name := "New"
	role := models.RoleAdmin

	user, err := svc.Update(context.Background(), "1", models.UpdateUserRequest{FirstName: &name, Role: &role}, AuditMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, "New", repo.users["1"].FirstName)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceUpdateRejectsPassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com"}}}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())
	password := "sneaky"

	_, err := svc.Update(context.Background(), "1", models.UpdateUserRequest{Password: &password}, AuditMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.auditLogs)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", Active: true}}}
	svc := NewUserService(repo, NewValidator(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "1", AuditMeta{ActorID: "admin"}))
	assert.False(t, repo.users["1"].Active)
	assert.NotEmpty(t, repo.auditLogs)

	err := svc.Delete(context.Background(), "missing", AuditMeta{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
