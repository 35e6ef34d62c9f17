package filemode_test

import (
	"os"
	"testing"

	"github.com/ketchgit/core/plumbing/filemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m, err := filemode.New("40000")
	require.NoError(t, err)
	assert.Equal(t, filemode.Dir, m)

	m, err = filemode.New("100644")
	require.NoError(t, err)
	assert.Equal(t, filemode.Regular, m)

	_, err = filemode.New("not-octal")
	assert.Error(t, err)
}

func TestNewFromOSFileMode(t *testing.T) {
	cases := []struct {
		name string
		in   os.FileMode
		want filemode.FileMode
	}{
		{"dir", os.ModeDir | 0o755, filemode.Dir},
		{"regular", 0o644, filemode.Regular},
		{"executable", 0o755, filemode.Executable},
		{"symlink", os.ModeSymlink, filemode.Symlink},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := filemode.NewFromOSFileMode(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	errCases := []os.FileMode{os.ModeSocket, os.ModeNamedPipe, os.ModeDevice, os.ModeCharDevice, os.ModeTemporary}
	for _, m := range errCases {
		_, err := filemode.NewFromOSFileMode(m)
		assert.Error(t, err)
	}
}

func TestBytes(t *testing.T) {
	assert.Equal(t, []byte{0xA4, 0x81, 0x00, 0x00}, filemode.Regular.Bytes())
}

func TestString(t *testing.T) {
	assert.Equal(t, "0040000", filemode.Dir.String())
	assert.Equal(t, "0100644", filemode.Regular.String())
}

func TestIsMalformed(t *testing.T) {
	assert.False(t, filemode.Regular.IsMalformed())
	assert.True(t, filemode.FileMode(0o777).IsMalformed())
}

func TestIsRegular(t *testing.T) {
	assert.True(t, filemode.Regular.IsRegular())
	assert.True(t, filemode.Deprecated.IsRegular())
	assert.False(t, filemode.Executable.IsRegular())
}

func TestIsFile(t *testing.T) {
	assert.True(t, filemode.Symlink.IsFile())
	assert.False(t, filemode.Dir.IsFile())
	assert.False(t, filemode.Submodule.IsFile())
}

func TestToOSFileMode(t *testing.T) {
	m, err := filemode.Dir.ToOSFileMode()
	require.NoError(t, err)
	assert.True(t, m.IsDir())

	_, err = filemode.FileMode(0o777).ToOSFileMode()
	assert.Error(t, err)
}
