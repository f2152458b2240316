package shared

// Staff permissions checked by the admin surface.
const (
	PermCatalogManage = "catalog.manage"
	PermOrdersView    = "orders.view"
	PermOrdersManage  = "orders.manage"
)

// StaffScopes lists every permission granted to the staff role.
func StaffScopes() []string {
	return []string{
		PermCatalogManage,
		PermOrdersView,
		PermOrdersManage,
	}
}
