package core

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserStore) Count(ctx context.Context, q UserQuery) (int, error) {
	args := m.Called(ctx, q)
	return args.Int(0), args.Error(1)
}

func (m *mockUserStore) List(ctx context.Context, q UserQuery) ([]User, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]User), args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, in NewUser) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUserStore) Update(ctx context.Context, id int64, patch UserPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *mockUserStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockUserStore) LevelName(ctx context.Context, levelID int64) (string, error) {
	args := m.Called(ctx, levelID)
	return args.String(0), args.Error(1)
}

func (m *mockUserStore) LevelExists(ctx context.Context, levelID int64) (bool, error) {
	args := m.Called(ctx, levelID)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) Conflicts(ctx context.Context, username, email string, excludeID int64) (UniqueConflict, error) {
	args := m.Called(ctx, username, email, excludeID)
	return args.Get(0).(UniqueConflict), args.Error(1)
}

func (m *mockUserStore) HasAdmin(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var anyCtx = mock.Anything

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }
