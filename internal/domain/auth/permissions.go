package auth

// Permission codes checked by the API.
const (
	PermInvoiceRead    = "invoice:read"
	PermInvoiceWrite   = "invoice:write"
	PermInvoiceApprove = "invoice:approve"
	PermProductRead    = "product:read"
	PermProductWrite   = "product:write"
	PermStockRead      = "stock:read"
)

// Role presets for minting tokens.
var rolePermissions = map[string][]string{
	"viewer":  {PermInvoiceRead, PermProductRead, PermStockRead},
	"clerk":   {PermInvoiceRead, PermInvoiceWrite, PermProductRead, PermProductWrite, PermStockRead},
	"manager": {PermInvoiceRead, PermInvoiceWrite, PermInvoiceApprove, PermProductRead, PermProductWrite, PermStockRead},
}

// PermissionsForRoles expands role presets into a distinct permission list.
// Unknown roles grant nothing.
func PermissionsForRoles(roles ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
