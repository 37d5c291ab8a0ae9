package requisition

import (
	"context"

	"github.com/kivu-erp/kivu-erp/internal/directory"
	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// DirectoryPort exposes the identity collaborator operations routing needs.
type DirectoryPort interface {
	GetUser(ctx context.Context, id int64) (directory.User, error)
	ManagerChain(ctx context.Context, userID int64) ([]directory.User, error)
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// ResolveApprover walks the requester's reporting chain upward and returns
// the first ancestor holding the approve permission. The approver is computed
// live on every call, never stored. The second return is false when the chain
// is exhausted without a qualifying approver, which leaves the requisition
// stalled in submitted.
func ResolveApprover(ctx context.Context, dir DirectoryPort, requesterID int64) (directory.User, bool, error) {
	chain, err := dir.ManagerChain(ctx, requesterID)
	if err != nil {
		return directory.User{}, false, err
	}
	for _, ancestor := range chain {
		if !ancestor.IsActive {
			continue
		}
		ok, err := dir.HasPermission(ctx, ancestor.ID, shared.PermRequisitionApprove)
		if err != nil {
			return directory.User{}, false, err
		}
		if ok {
			return ancestor, true, nil
		}
	}
	return directory.User{}, false, nil
}
