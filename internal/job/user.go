package job

// User is the snapshot of an authenticated principal.
type User struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Roles  []string       `json:"roles,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// Public returns the fields of the user that may leave the process.
func (u User) Public() map[string]any {
	public := map[string]any{"id": u.ID}
	if len(u.Roles) > 0 {
		public["roles"] = append([]string(nil), u.Roles...)
	}
	return public
}

// Map returns the user as a plain object, the shape rule bundles validate.
func (u User) Map() map[string]any {
	m := map[string]any{"id": u.ID}
	if u.Email != "" {
		m["email"] = u.Email
	}
	if len(u.Roles) > 0 {
		roles := make([]any, len(u.Roles))
		for i, r := range u.Roles {
			roles[i] = r
		}
		m["roles"] = roles
	}
	if len(u.Claims) > 0 {
		m["claims"] = cloneMap(u.Claims)
	}
	return m
}

func (u User) clone() User {
	out := u
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	if u.Claims != nil {
		out.Claims = cloneMap(u.Claims)
	}
	return out
}
