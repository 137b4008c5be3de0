package auth

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RolePayroll     = "Payroll"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermTaxCalculate     = "tax.calculate"
	PermTaxSettingsRead  = "tax.settings.read"
	PermTaxSettingsWrite = "tax.settings.write"
	PermTaxBracketsWrite = "tax.brackets.write"
	PermMetricsRead      = "metrics.read"
	PermSystemAdmin      = "admin.system"
)

var DefaultPermissions = []string{
	PermTaxCalculate,
	PermTaxSettingsRead,
	PermTaxSettingsWrite,
	PermTaxBracketsWrite,
	PermMetricsRead,
	PermSystemAdmin,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermTaxCalculate,
	},
	RoleManager: {
		PermTaxCalculate,
		PermTaxSettingsRead,
	},
	RoleHR: {
		PermTaxCalculate,
		PermTaxSettingsRead,
	},
	RolePayroll: {
		PermTaxCalculate,
		PermTaxSettingsRead,
		PermTaxSettingsWrite,
		PermTaxBracketsWrite,
	},
	RoleSystemAdmin: {
		PermTaxSettingsRead,
		PermTaxSettingsWrite,
		PermTaxBracketsWrite,
		PermMetricsRead,
		PermSystemAdmin,
	},
}
