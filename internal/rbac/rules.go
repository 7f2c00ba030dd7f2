package rbac

// Simple default policy. Object-level checks (ownership, enrollment) live in Gate.
// Submitting and enrolling are decided by Gate alone, so they have no entry here.
var RolePermissions = map[Role][]string{
	RoleStudent: {
		"test:view",
		"result:view-own",
	},
	RoleTeacher: {
		"course:create",
		"course:delete_own",
		"material:manage_own",
		"test:view",
		"test:manage_own",
		"result:view-course",
		"users:bulk_upsert",
	},
	RoleAdmin: {
		"*", // everything
	},
}
