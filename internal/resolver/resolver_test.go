package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/KingRainbow44/modpack-installer/internal/artifact"
	"github.com/KingRainbow44/modpack-installer/internal/model"
	"github.com/KingRainbow44/modpack-installer/internal/registry/registrytest"
	"go.uber.org/zap"
)

// recordingWriter remembers the order in which projects were written
type recordingWriter struct {
	mu      sync.Mutex
	written []string
	failFor map[string]bool
}

func (w *recordingWriter) Write(_ context.Context, _ model.DownloadTarget, release *model.ReleaseInfo, pkg *model.PackageInfo) (artifact.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failFor[pkg.ID] {
		return artifact.Result{ProjectID: pkg.ID}, errors.New("disk full")
	}
	if len(release.Files) == 0 {
		return artifact.Result{Outcome: artifact.Skipped, ProjectID: pkg.ID}, nil
	}
	w.written = append(w.written, pkg.ID)
	return artifact.Result{Outcome: artifact.Downloaded, ProjectID: pkg.ID, Filename: release.Files[0].Filename}, nil
}

func (w *recordingWriter) order() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

var target = model.DownloadTarget{Dir: "/unused", PlatformVersion: "1.20.1"}

// addMod registers a project with a single usable release r1
func addMod(srv *registrytest.Server, id string, client, server model.SupportLevel, deps ...model.Dependency) {
	srv.AddProject(model.PackageInfo{
		ID:         id,
		Title:      id,
		ClientSide: client,
		ServerSide: server,
		Versions:   []string{"r1"},
	})
	srv.AddVersion(id, "r1", registrytest.Release(id, "1.20.1", "u", id+".jar", deps...))
}

func TestResolvePrimary_DependenciesWrittenFirst(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "app", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("lib", model.DependencyRequired),
		registrytest.Dep("api", model.DependencyRequired))
	addMod(srv, "lib", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("core", model.DependencyRequired))
	addMod(srv, "api", model.SupportOptional, model.SupportOptional)
	addMod(srv, "core", model.SupportRequired, model.SupportRequired)

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())

	ok, err := r.ResolvePrimary(context.Background(), target, "app", false)
	if err != nil || !ok {
		t.Fatalf("ResolvePrimary = %v, %v", ok, err)
	}

	want := []string{"core", "lib", "api", "app"}
	got := w.order()
	if len(got) != len(want) {
		t.Fatalf("written = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("written = %v, want %v", got, want)
			break
		}
	}
	if n := r.Stats().Downloaded.Load(); n != 4 {
		t.Errorf("downloaded = %d, want 4", n)
	}
}

func TestResolvePrimary_OnlyRequiredEdgesFollowed(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "app", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("opt", model.DependencyOptional),
		registrytest.Dep("bad", model.DependencyIncompatible),
		registrytest.Dep("inside", model.DependencyEmbedded),
		model.Dependency{ProjectID: nil, Kind: model.DependencyRequired})

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())

	if _, err := r.ResolvePrimary(context.Background(), target, "app", false); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"opt", "bad", "inside"} {
		if srv.Hits("/project/"+id) != 0 {
			t.Errorf("%s must not be fetched", id)
		}
	}
	if got := w.order(); len(got) != 1 || got[0] != "app" {
		t.Errorf("written = %v", got)
	}
}

func TestResolvePrimary_SideFilter(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "shader", model.SupportRequired, model.SupportUnsupported,
		registrytest.Dep("lib", model.DependencyRequired))
	addMod(srv, "lib", model.SupportRequired, model.SupportRequired)

	// Server install: nothing happens.
	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())
	ok, err := r.ResolvePrimary(context.Background(), target, "shader", true)
	if err != nil {
		t.Fatalf("unsupported must not be an error: %v", err)
	}
	if ok {
		t.Error("expected false for an unsupported side")
	}
	if len(w.order()) != 0 {
		t.Errorf("expected zero writes, got %v", w.order())
	}
	if srv.Hits("/project/lib") != 0 {
		t.Error("expected zero dependency fetches")
	}
	if r.Stats().Unsupported.Load() != 1 {
		t.Error("unsupported counter not incremented")
	}

	// Client install of the same package proceeds.
	w = &recordingWriter{}
	r = New(newClient(srv), w, zap.NewNop())
	ok, err = r.ResolvePrimary(context.Background(), target, "shader", false)
	if err != nil || !ok {
		t.Fatalf("client install = %v, %v", ok, err)
	}
	if got := w.order(); len(got) != 2 {
		t.Errorf("written = %v, want lib and shader", got)
	}
}

func TestResolveTransitive_IgnoresSideFilter(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()
	addMod(srv, "clientonly", model.SupportRequired, model.SupportUnsupported)

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())
	if err := r.ResolveTransitive(context.Background(), target, "clientonly"); err != nil {
		t.Fatal(err)
	}
	if got := w.order(); len(got) != 1 {
		t.Errorf("written = %v", got)
	}
}

func TestResolvePrimary_UnsupportedPrimaryStillPulledAsDependency(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()
	addMod(srv, "clientlib", model.SupportRequired, model.SupportUnsupported)
	addMod(srv, "app", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("clientlib", model.DependencyRequired))

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())

	if ok, _ := r.ResolvePrimary(context.Background(), target, "clientlib", true); ok {
		t.Fatal("clientlib is unsupported on the server")
	}
	if ok, err := r.ResolvePrimary(context.Background(), target, "app", true); !ok || err != nil {
		t.Fatalf("app = %v, %v", ok, err)
	}
	if got := w.order(); len(got) != 2 || got[0] != "clientlib" {
		t.Errorf("written = %v, want clientlib then app", got)
	}
}

func TestResolve_DiamondFetchedOnce(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "a", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("b", model.DependencyRequired),
		registrytest.Dep("c", model.DependencyRequired))
	addMod(srv, "b", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("d", model.DependencyRequired))
	addMod(srv, "c", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("d", model.DependencyRequired))
	addMod(srv, "d", model.SupportRequired, model.SupportRequired)

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())
	if _, err := r.ResolvePrimary(context.Background(), target, "a", false); err != nil {
		t.Fatal(err)
	}

	if hits := srv.Hits("/project/d"); hits != 1 {
		t.Errorf("d fetched %d times, want 1", hits)
	}
	if got := w.order(); len(got) != 4 {
		t.Errorf("written = %v", got)
	}
}

func TestResolve_CycleTerminates(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "a", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("b", model.DependencyRequired))
	addMod(srv, "b", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("a", model.DependencyRequired))

	w := &recordingWriter{}
	r := New(newClient(srv), w, zap.NewNop())
	ok, err := r.ResolvePrimary(context.Background(), target, "a", false)
	if err != nil || !ok {
		t.Fatalf("ResolvePrimary = %v, %v", ok, err)
	}
	if got := w.order(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("written = %v, want [b a]", got)
	}
	if srv.Hits("/project/a") != 1 {
		t.Errorf("a fetched %d times", srv.Hits("/project/a"))
	}
}

func TestResolve_FailedDependencyDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	addMod(srv, "app", model.SupportRequired, model.SupportRequired,
		registrytest.Dep("missing", model.DependencyRequired),
		registrytest.Dep("broken", model.DependencyRequired),
		registrytest.Dep("fine", model.DependencyRequired))
	addMod(srv, "broken", model.SupportRequired, model.SupportRequired)
	addMod(srv, "fine", model.SupportRequired, model.SupportRequired)

	var mu sync.Mutex
	var failed []string
	w := &recordingWriter{failFor: map[string]bool{"broken": true}}
	r := New(newClient(srv), w, zap.NewNop(), WithFailureHook(func(ref string, _ error) {
		mu.Lock()
		failed = append(failed, ref)
		mu.Unlock()
	}))

	ok, err := r.ResolvePrimary(context.Background(), target, "app", false)
	if err != nil || !ok {
		t.Fatalf("ResolvePrimary = %v, %v", ok, err)
	}
	if got := w.order(); len(got) != 2 || got[0] != "fine" || got[1] != "app" {
		t.Errorf("written = %v, want [fine app]", got)
	}
	if len(failed) != 2 {
		t.Errorf("failures = %v, want missing and broken", failed)
	}
	if r.Stats().Failed.Load() != 2 {
		t.Errorf("failed = %d", r.Stats().Failed.Load())
	}
}

func TestResolvePrimary_WriteFailureReturnsFalse(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()
	addMod(srv, "app", model.SupportRequired, model.SupportRequired)

	w := &recordingWriter{failFor: map[string]bool{"app": true}}
	r := New(newClient(srv), w, zap.NewNop())

	ok, err := r.ResolvePrimary(context.Background(), target, "app", false)
	if ok || err == nil {
		t.Errorf("ResolvePrimary = %v, %v; want false with error", ok, err)
	}
}

func TestResolvePrimary_UnknownPackage(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()

	r := New(newClient(srv), &recordingWriter{}, zap.NewNop())
	ok, err := r.ResolvePrimary(context.Background(), target, "nope", false)
	if ok || err == nil {
		t.Errorf("ResolvePrimary = %v, %v; want false with error", ok, err)
	}
}

func TestResolvePrimary_NoCompatibleReleaseIsSkipped(t *testing.T) {
	t.Parallel()

	srv := registrytest.NewServer()
	defer srv.Close()
	srv.AddProject(model.PackageInfo{ID: "old", Versions: []string{"r1"}})
	srv.AddVersion("old", "r1", registrytest.Release("old", "1.16.5", "u", "old.jar"))

	var results []artifact.Result
	r := New(newClient(srv), &recordingWriter{}, zap.NewNop(), WithResultHook(func(res artifact.Result) {
		results = append(results, res)
	}))

	ok, err := r.ResolvePrimary(context.Background(), target, "old", false)
	if err != nil || !ok {
		t.Fatalf("ResolvePrimary = %v, %v", ok, err)
	}
	if r.Stats().Skipped.Load() != 1 {
		t.Error("expected a skipped outcome")
	}
	if len(results) != 1 || results[0].Outcome != artifact.Skipped {
		t.Errorf("results = %+v", results)
	}
}

func TestSeen(t *testing.T) {
	t.Parallel()

	s := newSeen()
	var wg sync.WaitGroup
	var added sync.Map
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Add("shared") {
				added.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	added.Range(func(_, _ any) bool { n++; return true })
	if n != 1 {
		t.Errorf("Add returned true %d times, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}
