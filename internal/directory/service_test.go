package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kivu-erp/kivu-erp/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	perms  map[int64]map[string]bool
	hashes map[int64][]byte
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:  make(map[int64]User),
		perms:  make(map[int64]map[string]bool),
		hashes: make(map[int64][]byte),
	}
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) CreateUser(ctx context.Context, user User, hash []byte) (int64, error) {
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	r.hashes[user.ID] = hash
	return user.ID, nil
}

func (r *memoryRepo) SetReportsTo(ctx context.Context, userID int64, managerID *int64) error {
	user, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.ReportsTo = managerID
	r.users[userID] = user
	return nil
}

func (r *memoryRepo) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	return r.perms[userID][permission], nil
}

func (r *memoryRepo) GrantPermission(ctx context.Context, userID int64, permission string) error {
	if r.perms[userID] == nil {
		r.perms[userID] = make(map[string]bool)
	}
	r.perms[userID][permission] = true
	return nil
}

func addUser(t *testing.T, svc *Service, name string, reportsTo *int64) User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), CreateUserInput{
		Email:     name + "@kivu.local",
		Name:      name,
		Password:  "correct-horse",
		ReportsTo: reportsTo,
	})
	require.NoError(t, err)
	return user
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	user := addUser(t, svc, "amina", nil)

	hash := repo.hashes[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte("correct-horse")))
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "bad", Name: "x", Password: "longenough"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateUser(context.Background(), CreateUserInput{Email: "a@b.cd", Name: "x", Password: "short"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestManagerChainWalksUpward(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	top := addUser(t, svc, "dg", nil)
	mid := addUser(t, svc, "chef", &top.ID)
	leaf := addUser(t, svc, "agent", &mid.ID)

	chain, err := svc.ManagerChain(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, mid.ID, chain[0].ID)
	require.Equal(t, top.ID, chain[1].ID)
}

func TestSetReportsToRejectsCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a := addUser(t, svc, "a", nil)
	b := addUser(t, svc, "b", &a.ID)

	require.ErrorIs(t, svc.SetReportsTo(ctx, a.ID, &a.ID), ErrCycle)
	require.ErrorIs(t, svc.SetReportsTo(ctx, a.ID, &b.ID), ErrCycle)
}

func TestGrantPermissionValidatesScope(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	user := addUser(t, svc, "amina", nil)

	require.NoError(t, svc.GrantPermission(context.Background(), user.ID, shared.PermRequisitionApprove))
	ok, err := svc.HasPermission(context.Background(), user.ID, shared.PermRequisitionApprove)
	require.NoError(t, err)
	require.True(t, ok)

	// Only scopes a guard actually checks are grantable.
	err = svc.GrantPermission(context.Background(), user.ID, "reports.export")
	require.ErrorIs(t, err, ErrValidation)
	err = svc.GrantPermission(context.Background(), user.ID, "ledger.post")
	require.ErrorIs(t, err, ErrValidation)
}
