package access

// NavItem is one entry of the application navigation.
type NavItem struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Path       string     `json:"path"`
	Capability Capability `json:"capability"`
}

var defaultNavigation = []NavItem{
	{ID: "dashboard", Label: "Dashboard", Path: "/dashboard", Capability: CapDashboard},
	{ID: "exceptions", Label: "Exceptions", Path: "/exceptions", Capability: CapExceptionsView},
	{ID: "rules", Label: "Rules", Path: "/rules", Capability: CapRulesView},
	{ID: "templates", Label: "Templates", Path: "/templates", Capability: CapTemplatesView},
	{ID: "connectors", Label: "Data Sources", Path: "/connectors", Capability: CapConnectorsView},
	{ID: "audit", Label: "Run History", Path: "/audit", Capability: CapAuditView},
	{ID: "users", Label: "Users", Path: "/users", Capability: CapUsersManage},
}

// Navigation returns the items roles may see, in display order.
func (g *Gate) Navigation(roles []Role) []NavItem {
	out := make([]NavItem, 0, len(defaultNavigation))
	for _, item := range defaultNavigation {
		if g.Allows(roles, item.Capability) {
			out = append(out, item)
		}
	}
	return out
}
