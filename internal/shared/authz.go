package shared

// Permissions checked by the workflow guards. Every scope listed here is
// enforced somewhere; GrantPermission rejects anything else.
const (
	PermRequisitionApprove = "requisition.approve"

	PermStockTransferApprove = "stores.transfer.approve"
)

// Scopes lists every permission the application declares.
func Scopes() []string {
	return []string{
		PermRequisitionApprove,
		PermStockTransferApprove,
	}
}
