package pipeline

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe"
	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/fetch"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/options"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

var testFacts = platform.Facts{
	OS:        platform.Linux,
	Arch:      "x86_64",
	Compiler:  platform.Compiler{Name: "gcc", Version: "9"},
	BuildType: platform.Release,
	HostOS:    platform.Linux,
}

type fakeSources struct {
	calls int
}

func (f *fakeSources) Source(_ context.Context, _ fetch.Source, workDir, subfolder string, _ bool) (string, error) {
	f.calls++
	dest := filepath.Join(workDir, subfolder)
	if _, err := os.Stat(dest); err == nil {
		return "", &rerrors.ConflictError{Path: dest}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	return dest, os.WriteFile(filepath.Join(dest, recipe.LicenseFile), []byte("zlib license"), 0o644)
}

type fakeBuild struct {
	packageDir string
	calls      []string
	defs       []plan.Definitions
	failOn     string
}

func (f *fakeBuild) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return &rerrors.BuildToolError{Step: name, Err: errors.New("exit code 1")}
	}
	return nil
}

func (f *fakeBuild) Configure(_ context.Context, defs plan.Definitions) error {
	f.defs = append(f.defs, defs)
	return f.step("configure")
}

func (f *fakeBuild) Build(context.Context) error { return f.step("build") }

func (f *fakeBuild) Install(context.Context) error {
	if err := f.step("install"); err != nil {
		return err
	}
	for _, dir := range installedDirs {
		if err := os.MkdirAll(filepath.Join(f.packageDir, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

type fakeStore map[string]bool

func (s fakeStore) Check(req plan.Requirement) error {
	if s[req.String()] {
		return nil
	}
	return rerrors.ErrRequirementMissing
}

func resolveOptions(t *testing.T, assignments ...string) options.FeatureOptions {
	t.Helper()
	return resolveOptionsFor(t, testFacts, assignments...)
}

func resolveOptionsFor(t *testing.T, facts platform.Facts, assignments ...string) options.FeatureOptions {
	t.Helper()
	r := recipe.Bullet3()
	set := r.NewOptions()
	require.NoError(t, set.ApplyAll(assignments))
	opts, err := set.Resolve(facts, r.Rules, options.ValidationStrict, hclog.NewNullLogger())
	require.NoError(t, err)
	return opts
}

func testLayout(root string) Layout {
	return Layout{
		SourceDir:  filepath.Join(root, "source"),
		BuildDir:   filepath.Join(root, "build"),
		PackageDir: filepath.Join(root, "package"),
	}
}

func newTestSession(t *testing.T, root string, opts options.FeatureOptions, reqs RequirementChecker) (*Session, *fakeSources, *fakeBuild) {
	t.Helper()
	return newTestSessionFor(t, root, testFacts, opts, reqs)
}

func newTestSessionFor(t *testing.T, root string, facts platform.Facts, opts options.FeatureOptions, reqs RequirementChecker) (*Session, *fakeSources, *fakeBuild) {
	t.Helper()
	layout := testLayout(root)
	sources := &fakeSources{}
	build := &fakeBuild{packageDir: layout.PackageDir}

	s, err := NewSession(Params{
		Recipe:       recipe.Bullet3(),
		Options:      opts,
		Facts:        facts,
		Layout:       layout,
		Sources:      sources,
		BuildSystem:  build,
		Requirements: reqs,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	return s, sources, build
}

func TestSession_Run(t *testing.T) {
	root := t.TempDir()
	s, sources, build := newTestSession(t, root, resolveOptions(t, "bullet3=True"), nil)
	require.Equal(t, Unfetched, s.Stage())

	desc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Described, s.Stage())
	assert.Equal(t, 1, sources.calls)
	// build re-configures, install re-configures again
	assert.Equal(t, []string{"configure", "build", "configure", "install"}, build.calls)

	for _, defs := range build.defs {
		assert.Equal(t, build.defs[0], defs, "every configure sees the same definitions")
		prefix, ok := defs.Lookup(plan.DefInstallPrefix)
		require.True(t, ok)
		assert.Equal(t, s.layout.PackageDir, prefix)
	}

	license, err := os.ReadFile(filepath.Join(s.layout.PackageDir, LicenseDir, recipe.LicenseFile))
	require.NoError(t, err)
	assert.Equal(t, "zlib license", string(license))

	data, err := os.ReadFile(filepath.Join(s.layout.PackageDir, DescriptionFile))
	require.NoError(t, err)
	var written plan.PackageDescription
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, desc, written)
	assert.Equal(t, "Bullet2FileLoader", written.Libs[0])
}

func TestSession_ResumesFromDisk(t *testing.T) {
	root := t.TempDir()
	opts := resolveOptions(t)
	first, _, _ := newTestSession(t, root, opts, nil)
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	second, sources, build := newTestSession(t, root, opts, nil)
	assert.Equal(t, Described, second.Stage())

	_, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sources.calls)
	assert.Empty(t, build.calls)

	other, _, _ := newTestSession(t, root, resolveOptions(t, "double_precision=True"), nil)
	assert.Equal(t, Fetched, other.Stage(), "markers of other options do not count")
}

func TestSession_StageOrder(t *testing.T) {
	ctx := context.Background()
	s, _, build := newTestSession(t, t.TempDir(), resolveOptions(t), nil)

	assert.ErrorIs(t, s.Configure(ctx), rerrors.ErrStageOrder)
	assert.ErrorIs(t, s.Build(ctx), rerrors.ErrStageOrder)
	assert.ErrorIs(t, s.Install(ctx), rerrors.ErrStageOrder)
	_, err := s.Describe()
	assert.ErrorIs(t, err, rerrors.ErrStageOrder)
	assert.Empty(t, build.calls)

	require.NoError(t, s.Source(ctx))
	require.NoError(t, s.Configure(ctx))
	assert.Equal(t, Configured, s.Stage())
	assert.ErrorIs(t, s.Install(ctx), rerrors.ErrStageOrder, "install needs a completed build")
}

func TestSession_SourceConflict(t *testing.T) {
	s, _, _ := newTestSession(t, t.TempDir(), resolveOptions(t), nil)
	require.NoError(t, s.Source(context.Background()))

	var conflict *rerrors.ConflictError
	assert.True(t, errors.As(s.Source(context.Background()), &conflict))
}

func TestSession_BuildFailurePropagates(t *testing.T) {
	ctx := context.Background()
	s, _, build := newTestSession(t, t.TempDir(), resolveOptions(t), nil)
	build.failOn = "build"

	require.NoError(t, s.Source(ctx))
	err := s.Build(ctx)

	var toolErr *rerrors.BuildToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "build", toolErr.Step)
	assert.Equal(t, Configured, s.Stage())
	assert.FileExists(t, filepath.Join(s.layout.BuildDir, ".build.incomplete"))
}

func TestSession_Requirements(t *testing.T) {
	ctx := context.Background()
	opts := resolveOptions(t, "pybullet=True")

	missing, _, build := newTestSession(t, t.TempDir(), opts, fakeStore{})
	require.NoError(t, missing.Source(ctx))
	assert.ErrorIs(t, missing.Configure(ctx), rerrors.ErrRequirementMissing)
	assert.Empty(t, build.calls)

	present, _, _ := newTestSession(t, t.TempDir(), opts, fakeStore{plan.PythonRequirement: true})
	desc, err := present.Run(ctx)
	require.NoError(t, err)
	require.Len(t, desc.Requirements, 1)
	assert.Equal(t, plan.PythonRequirement, desc.Requirements[0].String())
}

func TestSession_DescribeMismatch(t *testing.T) {
	root := t.TempDir()
	_, err := func() (plan.PackageDescription, error) {
		s, _, _ := newTestSession(t, root, resolveOptions(t), nil)
		return s.Run(context.Background())
	}()
	require.NoError(t, err)

	s, _, _ := newTestSession(t, root, resolveOptions(t, "network_support=True"), nil)
	_, err = s.Describe()
	assert.ErrorIs(t, err, rerrors.ErrDescriptionMismatch)
}

func TestSession_OtherSettingsRebuild(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	release := platform.Facts{
		OS:        platform.Windows,
		Arch:      "x86_64",
		Compiler:  platform.Compiler{Name: platform.VisualStudio, Version: "15", Runtime: "MD"},
		BuildType: platform.Release,
		HostOS:    platform.Windows,
	}
	debug := release
	debug.Compiler.Runtime = "MTd"
	debug.BuildType = platform.Debug

	first, _, _ := newTestSessionFor(t, root, release, resolveOptionsFor(t, release, "shared=True"), nil)
	_, err := first.Run(ctx)
	require.NoError(t, err)

	opts := resolveOptionsFor(t, debug, "shared=True")
	second, _, build := newTestSessionFor(t, root, debug, opts, nil)
	assert.Equal(t, Fetched, second.Stage(), "an install for other settings is not reused")

	_, err = second.Describe()
	assert.ErrorIs(t, err, rerrors.ErrDescriptionMismatch)

	desc, err := second.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"configure", "build", "configure", "install"}, build.calls)
	runtimeDLL, ok := build.defs[0].Lookup("USE_MSVC_RUNTIME_LIBRARY_DLL")
	require.True(t, ok)
	assert.Equal(t, "OFF", runtimeDLL)
	assert.Equal(t, "BulletDynamics_Debug", desc.Libs[0])
	assert.Equal(t, plan.BuildFingerprint(opts, debug).String(), desc.Fingerprint)
}

func TestNewSession_RequiresFacts(t *testing.T) {
	_, err := NewSession(Params{
		Recipe:      recipe.Bullet3(),
		Options:     resolveOptions(t),
		Facts:       platform.Facts{OS: platform.Linux},
		Sources:     &fakeSources{},
		BuildSystem: &fakeBuild{},
	}, hclog.NewNullLogger())
	assert.Error(t, err)
}

func TestPackageStore(t *testing.T) {
	store := PackageStore{Root: t.TempDir()}
	req := plan.MustParseRequirement(plan.PythonRequirement)
	assert.ErrorIs(t, store.Check(req), rerrors.ErrRequirementMissing)

	_, err := store.Publish(plan.PackageDescription{Name: "cpython", Version: "3.7.2"})
	require.NoError(t, err)
	assert.NoError(t, store.Check(req))

	require.NoError(t, os.WriteFile(filepath.Join(store.Path(req), DescriptionFile), []byte("{"), 0o644))
	assert.ErrorIs(t, store.Check(req), rerrors.ErrRequirementMissing)
}

func sourceTarball(t *testing.T, prefix string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	files := map[string]string{
		prefix + "/" + recipe.LicenseFile: "zlib license",
		prefix + "/CMakeLists.txt":        "project(BULLET_PHYSICS)",
	}
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: prefix + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestSession_RunWithFetcher(t *testing.T) {
	r := recipe.Bullet3()
	body := sourceTarball(t, "bullet3-2.88")
	sum := sha256.Sum256(body)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	r.Upstream = fetch.Upstream{Host: server.URL, Owner: "bulletphysics", Repo: "bullet3"}
	r.Checksums = map[string]string{"2.88": hex.EncodeToString(sum[:])}

	root := t.TempDir()
	resolver, err := r.Resolver(filepath.Join(root, "cache"))
	require.NoError(t, err)
	src, err := resolver.Resolve(r.VersionString())
	require.NoError(t, err)

	logger := hclog.NewNullLogger()
	layout := testLayout(root)
	build := &fakeBuild{packageDir: layout.PackageDir}
	s, err := NewSession(Params{
		Recipe:      r,
		Options:     resolveOptions(t),
		Facts:       testFacts,
		Layout:      layout,
		Source:      src,
		Sources:     fetch.NewFetcher(fetch.NewClient(fetch.ClientOptions{Retries: 0}, logger), 0, logger),
		BuildSystem: build,
	}, logger)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(layout.SourcesPath(), "CMakeLists.txt"))
	assert.NoDirExists(t, filepath.Join(layout.SourceDir, "bullet3-2.88"))
	assert.FileExists(t, filepath.Join(layout.PackageDir, LicenseDir, recipe.LicenseFile))
}
