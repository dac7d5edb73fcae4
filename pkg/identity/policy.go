package identity

// CanLogin reports whether the user may authenticate right now. Every request gate
// checks this regardless of how the identity was established (Google session,
// GitHub session, or bearer token); the three paths converge here.
func CanLogin(u *UserRecord) bool {
	return u.AllowLogin && !u.IsRetired
}

// IsAdmin reports whether admin-only operations are allowed. Admin implies nothing
// about CanLogin; a retired admin still cannot log in.
func IsAdmin(u *UserRecord) bool {
	return u.IsAdmin
}
