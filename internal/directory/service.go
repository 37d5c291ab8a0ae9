package directory

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, user User, passwordHash []byte) (int64, error)
	SetReportsTo(ctx context.Context, userID int64, managerID *int64) error
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
	GrantPermission(ctx context.Context, userID int64, permission string) error
}

// Service exposes the identity and reporting-hierarchy operations other
// modules depend on.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the directory service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// maxChainDepth bounds the hierarchy walk so a corrupted reports-to graph
// cannot spin forever.
const maxChainDepth = 64

// CreateUserInput describes creation payload.
type CreateUserInput struct {
	Email     string
	Name      string
	Password  string
	ReportsTo *int64
}

// CreateUser persists a user with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return User{}, fmt.Errorf("%w: email required", ErrValidation)
	}
	if input.Name == "" {
		return User{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password too short", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{Email: input.Email, Name: input.Name, ReportsTo: input.ReportsTo, IsActive: true}
	id, err := s.repo.CreateUser(ctx, user, hash)
	if err != nil {
		return User{}, err
	}
	user.ID = id
	return user, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// SetReportsTo rewires a user's manager, rejecting self-reports and cycles.
func (s *Service) SetReportsTo(ctx context.Context, userID int64, managerID *int64) error {
	if managerID != nil {
		if *managerID == userID {
			return ErrCycle
		}
		chain, err := s.ManagerChain(ctx, *managerID)
		if err != nil {
			return err
		}
		for _, ancestor := range chain {
			if ancestor.ID == userID {
				return ErrCycle
			}
		}
	}
	return s.repo.SetReportsTo(ctx, userID, managerID)
}

// HasPermission reports whether the user holds the permission.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	return s.repo.HasPermission(ctx, userID, permission)
}

// GrantPermission assigns a declared permission to a user.
func (s *Service) GrantPermission(ctx context.Context, userID int64, permission string) error {
	known := false
	for _, scope := range shared.Scopes() {
		if scope == permission {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown permission %q", ErrValidation, permission)
	}
	return s.repo.GrantPermission(ctx, userID, permission)
}

// ManagerChain walks the reports-to chain upward, starting with the user's
// direct manager. The walk is cycle-guarded and excludes the user itself.
func (s *Service) ManagerChain(ctx context.Context, userID int64) ([]User, error) {
	seen := map[int64]bool{userID: true}
	var chain []User
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for current.ReportsTo != nil {
		if len(chain) >= maxChainDepth {
			return nil, ErrCycle
		}
		next := *current.ReportsTo
		if seen[next] {
			return nil, ErrCycle
		}
		seen[next] = true
		manager, err := s.repo.GetUser(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, manager)
		current = manager
	}
	return chain, nil
}
