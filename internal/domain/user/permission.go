package user

type Permission string

const (
	// Absence requests
	PermissionAbsenceSubmit  Permission = "absence:submit"
	PermissionAbsenceReadOwn Permission = "absence:read_own"
	PermissionAbsenceReadAll Permission = "absence:read_all"
	PermissionAbsenceDecide  Permission = "absence:decide"

	// Quotas
	PermissionQuotaReadAll Permission = "quota:read_all"

	// Login codes for formateur sign-in
	PermissionLoginCodeIssue Permission = "login_code:issue"

	// Notifications
	PermissionNotificationRead Permission = "notification:read"
)

func (adminRole) Permissions() []Permission {
	return []Permission{
		PermissionAbsenceSubmit,
		PermissionAbsenceReadOwn,
		PermissionAbsenceReadAll,
		PermissionAbsenceDecide,
		PermissionQuotaReadAll,
		PermissionLoginCodeIssue,
		PermissionNotificationRead,
	}
}

func (formateurRole) Permissions() []Permission {
	return []Permission{
		PermissionAbsenceSubmit,
		PermissionAbsenceReadOwn,
		PermissionNotificationRead,
	}
}

func (apprenantRole) Permissions() []Permission {
	return []Permission{
		PermissionAbsenceSubmit,
		PermissionAbsenceReadOwn,
		PermissionNotificationRead,
	}
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	for _, p := range role.Permissions() {
		if p == permission {
			return true
		}
	}
	return false
}
