// Package registrytest provides an in-memory registry served over HTTP for tests.
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server mimics the two project endpoints of the registry and serves artifact files
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	projects   map[string]model.PackageInfo
	versions   map[string]model.ReleaseInfo // keyed by "project/version"
	files      map[string][]byte
	limited    map[string]int // path -> remaining 429 responses
	reset      string
	hits       map[string]int
	userAgents []string
}

// NewServer starts a fake registry. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		projects: make(map[string]model.PackageInfo),
		versions: make(map[string]model.ReleaseInfo),
		files:    make(map[string][]byte),
		limited:  make(map[string]int),
		hits:     make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.rateLimit)
	r.Get("/project/{id}", s.getProject)
	r.Get("/project/{id}/version/{version}", s.getVersion)
	r.Get("/files/{name}", s.getFile)

	s.Server = httptest.NewServer(r)
	return s
}

// AddProject registers a project under its id and any extra slugs
func (s *Server) AddProject(p model.PackageInfo, slugs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects[p.ID] = p
	for _, slug := range slugs {
		s.projects[slug] = p
	}
}

// AddVersion registers a release of a project
func (s *Server) AddVersion(projectID, versionID string, r model.ReleaseInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[projectID+"/"+versionID] = r
}

// AddFile serves data under /files/{name} and returns its URL
func (s *Server) AddFile(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return s.URL + "/files/" + name
}

// RateLimit answers the next n requests for path with 429 and the given reset header
func (s *Server) RateLimit(path string, n int, reset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited[path] = n
	s.reset = reset
}

// Hits returns how many requests reached path
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests of any path
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// UserAgents returns the User-Agent of every request in arrival order
func (s *Server) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userAgents...)
}

// Release builds a fabric release for one game version with a single file
func Release(projectID, gameVersion, url, filename string, deps ...model.Dependency) model.ReleaseInfo {
	id := projectID
	return model.ReleaseInfo{
		ProjectID:    &id,
		Files:        []model.File{{URL: url, Filename: filename}},
		Dependencies: deps,
		GameVersions: []string{gameVersion},
		Loaders:      []string{model.LoaderFabric},
	}
}

// Dep builds a dependency edge
func Dep(projectID string, kind model.DependencyKind) model.Dependency {
	id := projectID
	return model.Dependency{ProjectID: &id, Kind: kind}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.userAgents = append(s.userAgents, r.UserAgent())
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		remaining := s.limited[r.URL.Path]
		if remaining > 0 {
			s.limited[r.URL.Path] = remaining - 1
		}
		reset := s.reset
		s.mu.Unlock()

		if remaining > 0 {
			if reset != "" {
				w.Header().Set("X-Ratelimit-Reset", reset)
			}
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	p, ok := s.projects[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id") + "/" + chi.URLParam(r, "version")

	s.mu.Lock()
	v, ok := s.versions[key]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	data, ok := s.files[name]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/java-archive")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
