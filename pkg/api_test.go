package pkg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/config"
	rerrors "github.com/provide-io/flavor/go/bullet3/pkg/recipe/errors"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/plan"
	"github.com/provide-io/flavor/go/bullet3/pkg/recipe/platform"
)

func testRequest(t *testing.T, overrides ...string) Request {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()

	layout, err := DefaultLayout(t.TempDir())
	require.NoError(t, err)

	return Request{
		Config: cfg,
		Profile: &config.Profile{
			Options: map[string]string{"double_precision": "true"},
			Settings: platform.Facts{
				OS:        platform.Linux,
				Arch:      "x86_64",
				Compiler:  platform.Compiler{Name: "gcc", Version: "9"},
				BuildType: platform.Release,
				HostOS:    platform.Linux,
			},
		},
		Overrides: overrides,
		Layout:    layout,
	}
}

func TestPlanBuild(t *testing.T) {
	req := testRequest(t, "bullet3=True")
	p, err := PlanBuild(req, hclog.NewNullLogger())
	require.NoError(t, err)

	assert.Equal(t, "bullet3/2.88", p.Reference)
	assert.Equal(t, "https://github.com/bulletphysics/bullet3/archive/2.88.tar.gz", p.Source)
	assert.Contains(t, p.Options, "double_precision=True")
	assert.Contains(t, p.Options, "bullet3=True")

	prefix, ok := p.Definitions.Lookup(plan.DefInstallPrefix)
	require.True(t, ok)
	assert.Equal(t, req.Layout.PackageDir, prefix)

	assert.True(t, strings.HasPrefix(p.ConfigureCommand, "cmake -S "))
	assert.Contains(t, p.ConfigureCommand, "-DBUILD_BULLET3=ON")
	assert.Contains(t, p.ConfigureCommand, "-DUSE_DOUBLE_PRECISION=ON")
	assert.Len(t, p.Description.Libs, 11)
}

func TestPlanBuild_Errors(t *testing.T) {
	_, err := PlanBuild(testRequest(t, "turbo=True"), hclog.NewNullLogger())
	assert.ErrorIs(t, err, rerrors.ErrUnknownOption)

	_, err = PlanBuild(testRequest(t, "pybullet_numpy=True"), hclog.NewNullLogger())
	assert.ErrorIs(t, err, rerrors.ErrInvalidOptionCombination)

	req := testRequest(t)
	req.Version = "3.0"
	_, err = PlanBuild(req, hclog.NewNullLogger())
	assert.ErrorIs(t, err, rerrors.ErrUnknownVersion)
}

func TestNewSession_StartsUnfetched(t *testing.T) {
	s, err := NewSession(testRequest(t), hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, "unfetched", s.Stage().String())
}

func TestVerifyCache(t *testing.T) {
	req := testRequest(t)

	statuses, err := VerifyCache(req, nil, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Present)

	path := filepath.Join(req.Config.CacheDir, "bullet3-2.88.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not the release"), 0o644))

	statuses, err = VerifyCache(req, []string{"2.88.0"}, hclog.NewNullLogger())
	require.Error(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Present)
	assert.False(t, statuses[0].Valid)
	assert.Contains(t, statuses[0].Error, "integrity")
}
