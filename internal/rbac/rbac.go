// Package rbac maps corpus roles to the actions they may perform.
package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleAnnotator Role = "annotator"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

const (
	// ActionRead covers every GET endpoint.
	ActionRead Action = "read"
	// ActionAnnotate covers metaphor cases, metaphor models and the article
	// tone/comment/completeness flags.
	ActionAnnotate Action = "annotate"
	// ActionEdit covers editions and article content.
	ActionEdit  Action = "edit"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionAnnotate || action == ActionEdit
	case RoleAnnotator:
		return action == ActionRead || action == ActionAnnotate
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAnnotator, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// Valid reports whether role is one of the known roles.
func Valid(role string) bool {
	return Normalize(role) == Role(role)
}
