package model

// LoaderFabric is the only mod loader releases are matched against
const LoaderFabric = "fabric"

// SupportLevel is a project's declared support for one install side
type SupportLevel string

const (
	SupportRequired    SupportLevel = "required"
	SupportOptional    SupportLevel = "optional"
	SupportUnsupported SupportLevel = "unsupported"
)

// DependencyKind is the relation a release declares to another project
type DependencyKind string

const (
	DependencyRequired     DependencyKind = "required"
	DependencyOptional     DependencyKind = "optional"
	DependencyIncompatible DependencyKind = "incompatible"
	DependencyEmbedded     DependencyKind = "embedded"
)

// PackageInfo represents a project as returned by GET /project/{id}
type PackageInfo struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	ClientSide SupportLevel `json:"client_side"`
	ServerSide SupportLevel `json:"server_side"`
	Versions   []string     `json:"versions"` // oldest first
}

// Supports reports whether the project can be installed on the given side.
// Only an explicit "unsupported" excludes a project.
func (p *PackageInfo) Supports(isServer bool) bool {
	if isServer {
		return p.ServerSide != SupportUnsupported
	}
	return p.ClientSide != SupportUnsupported
}

// ReleaseInfo represents a project version as returned by
// GET /project/{id}/version/{version}
type ReleaseInfo struct {
	ProjectID    *string      `json:"project_id"`
	Files        []File       `json:"files"`
	Dependencies []Dependency `json:"dependencies"`
	GameVersions []string     `json:"game_versions"`
	Loaders      []string     `json:"loaders"`
}

// File is a downloadable build attached to a release
type File struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Dependency is an edge from a release to another project.
// ProjectID is nil when the registry only pins a version id.
type Dependency struct {
	ProjectID *string        `json:"project_id"`
	Kind      DependencyKind `json:"dependency_type"`
}

// EmptyRelease returns the sentinel release used when nothing matches
func EmptyRelease() *ReleaseInfo {
	return &ReleaseInfo{}
}

// Usable reports whether the release targets the platform version and loader
func (r *ReleaseInfo) Usable(platformVersion, loader string) bool {
	return contains(r.GameVersions, platformVersion) && contains(r.Loaders, loader)
}

// Owner returns the owning project id or an empty string
func (r *ReleaseInfo) Owner() string {
	if r.ProjectID == nil {
		return ""
	}
	return *r.ProjectID
}

// RequiredDependencies returns the project ids of all required edges
func (r *ReleaseInfo) RequiredDependencies() []string {
	var ids []string
	for _, dep := range r.Dependencies {
		if dep.Kind != DependencyRequired || dep.ProjectID == nil || *dep.ProjectID == "" {
			continue
		}
		ids = append(ids, *dep.ProjectID)
	}
	return ids
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
