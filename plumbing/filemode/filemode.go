// Package filemode defines the set of valid modes a tree entry may carry,
// mirroring git's own fixed vocabulary rather than the host OS's richer
// os.FileMode space.
package filemode

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
)

// A FileMode represents the type and permission of a tree entry, encoded
// the way git stores it: as an octal string in tree object content, and
// as a little-endian uint32 in index and cache-tree records.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0o40000
	Regular    FileMode = 0o100644
	Deprecated FileMode = 0o100664
	Executable FileMode = 0o100755
	Symlink    FileMode = 0o120000
	Submodule  FileMode = 0o160000
)

// New parses the octal string representation of a tree entry mode, as
// found in a tree object (e.g. "100644", "40000").
func New(s string) (FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, fmt.Errorf("malformed mode %q: %w", s, err)
	}
	return FileMode(n), nil
}

// NewFromOSFileMode translates a host os.FileMode into the closest git
// equivalent. Device files, sockets, named pipes, and temporary files have
// no git equivalent and return an error.
func NewFromOSFileMode(m os.FileMode) (FileMode, error) {
	if m&os.ModeSocket != 0 {
		return Empty, fmt.Errorf("no equivalent file mode for sockets")
	}
	if m&os.ModeNamedPipe != 0 {
		return Empty, fmt.Errorf("no equivalent file mode for named pipes")
	}
	if m&os.ModeDevice != 0 {
		return Empty, fmt.Errorf("no equivalent file mode for devices")
	}
	if m&os.ModeCharDevice != 0 {
		return Empty, fmt.Errorf("no equivalent file mode for char devices")
	}
	if m&os.ModeTemporary != 0 {
		return Empty, fmt.Errorf("no equivalent file mode for temporary files")
	}

	if m&os.ModeSymlink != 0 {
		return Symlink, nil
	}
	if m.IsDir() {
		return Dir, nil
	}

	if m&0o111 != 0 {
		return Executable, nil
	}
	return Regular, nil
}

// Bytes returns the mode as a 4-byte little-endian value, as stored in a
// cache-tree or index entry.
func (m FileMode) Bytes() []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(m))
	return b[:]
}

// String returns the zero-padded 7-digit octal representation used in
// tree object entries and `ls-tree`-style output.
func (m FileMode) String() string {
	return fmt.Sprintf("%07o", uint32(m))
}

// IsMalformed reports whether m is none of the fixed set of modes git
// recognizes.
func (m FileMode) IsMalformed() bool {
	switch m {
	case Empty, Dir, Regular, Deprecated, Executable, Symlink, Submodule:
		return false
	default:
		return true
	}
}

// IsRegular reports whether m addresses a blob of non-executable file
// content (the only two modes git itself treats as "regular").
func (m FileMode) IsRegular() bool {
	return m == Regular || m == Deprecated
}

// IsFile reports whether m addresses a blob at all: regular, deprecated,
// executable, or symlink, but not a tree or submodule.
func (m FileMode) IsFile() bool {
	switch m {
	case Regular, Deprecated, Executable, Symlink:
		return true
	default:
		return false
	}
}

// ToOSFileMode translates m to the closest host os.FileMode. A malformed
// mode has no translation.
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m {
	case Dir, Submodule:
		return os.ModePerm | os.ModeDir, nil
	case Regular, Deprecated:
		return 0o644, nil
	case Executable:
		return 0o755, nil
	case Symlink:
		return os.ModePerm | os.ModeSymlink, nil
	default:
		return 0, fmt.Errorf("malformed mode %s has no OS equivalent", m)
	}
}
