package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyEmail       = "email"
	KeyIsAdmin     = "isAdmin"
)
