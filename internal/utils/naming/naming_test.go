package naming

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-flyover/internal/geo"
)

func TestSlugAndDirs(t *testing.T) {
	assert.Equal(t, "the_valley_house", Slug("  The Valley House "))
	assert.Equal(t, "Recon_The_Valley_House", MissionName("The Valley House"))
	assert.Equal(t, "achill_the_valley_house", LocationID("The Valley House"))
}

func TestOutputDirIsPerMission(t *testing.T) {
	dir, err := OutputDir("out", "Keem Bay", "0b8e4c2a-1f")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "drone_simulation_keem_bay_0b8e4c2a-1f"), dir)

	other, err := OutputDir("out", "Keem Bay", "77aa")
	require.NoError(t, err)
	assert.NotEqual(t, dir, other)
}

func TestOutputDirStaysUnderRoot(t *testing.T) {
	root := filepath.Join("srv", "output")
	for _, poi := range []string{"/../../../tmp/pwn", "..", "../..", `..\..\etc`, "a/b/c", "", "   ", "./."} {
		dir, err := OutputDir(root, poi, "m1")
		require.NoError(t, err, poi)
		assert.Equal(t, root, filepath.Dir(dir), poi)
		assert.NotContains(t, filepath.Base(dir), "..", poi)
	}

	assert.Equal(t, "tmppwn", Slug("/../../../tmp/pwn"))
	assert.Equal(t, "poi", Slug("../.."))
	assert.Equal(t, "caf_ol", Slug("Café Olé"))
}

func TestRawFrameName(t *testing.T) {
	assert.Equal(t, "frame_4_satellite.jpg", RawFrameName(geo.Viewpoint{Index: 4}))
	assert.Equal(t, "frame_center_satellite.jpg", RawFrameName(geo.Viewpoint{Index: 7, Nadir: true}))
}

func TestCoordinateTag(t *testing.T) {
	assert.Equal(t, "53p9889N_10p0661W", CoordinateTag(geo.Coordinate{Latitude: 53.9889, Longitude: -10.0661}))
	assert.Equal(t, "33p8688S_151p2093E", CoordinateTag(geo.Coordinate{Latitude: -33.8688, Longitude: 151.2093}))
}
