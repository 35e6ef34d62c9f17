package blockcache_test

import (
	"testing"

	"github.com/ketchgit/core/internal/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource is a packfile.BlockSource backed by an in-memory byte
// slice that counts how many times each aligned position was actually
// read, so tests can tell a cache hit from a miss.
type countingSource struct {
	data      []byte
	blockSize int64
	reads     map[int64]int
}

func newCountingSource(size, blockSize int64) *countingSource {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &countingSource{data: data, blockSize: blockSize, reads: map[int64]int{}}
}

func (s *countingSource) ReadBlock(position int64, buf []byte) (int, error) {
	s.reads[position]++
	if position >= int64(len(s.data)) {
		return 0, nil
	}
	n := copy(buf, s.data[position:])
	return n, nil
}

func (s *countingSource) Size() int64      { return int64(len(s.data)) }
func (s *countingSource) BlockSize() int64 { return s.blockSize }
func (s *countingSource) Close() error     { return nil }

func TestNewOptionsDiscardsRequestedBlockLimit(t *testing.T) {
	opts := blockcache.NewOptions(1024, 4096, 0.5)
	assert.Equal(t, int64(blockcache.DefaultBlockLimit), opts.BlockLimit)
	assert.NotEqual(t, int64(1024), opts.BlockLimit)
}

func TestReadBlockServesRepeatReadsFromCache(t *testing.T) {
	src := newCountingSource(4096, 64)
	cache := blockcache.New(src, blockcache.Options{BlockLimit: 1024, BlockSize: 64, StreamRatio: 0})
	defer cache.Close()

	buf := make([]byte, 64)
	n, err := cache.ReadBlock(0, buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	n, err = cache.ReadBlock(10, buf)
	require.NoError(t, err)
	assert.Equal(t, 54, n)

	assert.Equal(t, 1, src.reads[0])
}

func TestReadBlockEvictsUnderBudget(t *testing.T) {
	src := newCountingSource(4096, 64)
	cache := blockcache.New(src, blockcache.Options{BlockLimit: 128, BlockSize: 64, StreamRatio: 0})
	defer cache.Close()

	buf := make([]byte, 64)
	for _, pos := range []int64{0, 64, 128, 192} {
		_, err := cache.ReadBlock(pos, buf)
		require.NoError(t, err)
	}

	_, err := cache.ReadBlock(0, buf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, src.reads[0], 2)
}

func TestReadBlockHonorsStreamRatioBudget(t *testing.T) {
	src := newCountingSource(4096, 64)
	cache := blockcache.New(src, blockcache.Options{BlockLimit: 256, BlockSize: 64, StreamRatio: 0.25})
	defer cache.Close()

	buf := make([]byte, 64)
	for _, pos := range []int64{0, 64} {
		_, err := cache.ReadBlock(pos, buf)
		require.NoError(t, err)
	}

	_, err := cache.ReadBlock(0, buf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, src.reads[0], 2)
}

func TestSizeAndBlockSizeDelegate(t *testing.T) {
	src := newCountingSource(4096, 64)
	cache := blockcache.New(src, blockcache.Options{BlockLimit: 1024, BlockSize: 64})
	defer cache.Close()

	assert.Equal(t, int64(4096), cache.Size())
	assert.Equal(t, int64(64), cache.BlockSize())
}
