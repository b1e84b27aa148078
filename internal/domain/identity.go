package domain

// Identity is the validated caller, produced by token introspection.
// It is not owned by this service and lives only for the duration of a request.
type Identity struct {
	// Subject is the opaque identifier issued by the identity provider.
	Subject string `json:"sub"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is the user's email address.
	Email string `json:"email"`
}

// Creator converts the identity into the creator block stored in metadata.
func (i Identity) Creator() Creator {
	return Creator{
		ID:    i.Subject,
		Name:  i.Name,
		Email: i.Email,
	}
}
