package knowledge

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Matrix is a read-only 2D float matrix backed by an NPY file. The file is
// memory-mapped so pages load on demand and startup cost stays independent
// of matrix size. When mmap is unavailable the whole file is read onto the
// heap instead.
type Matrix struct {
	data     []byte // element bytes, C-order
	rows     int
	cols     int
	elemSize int // 4 for float32, 8 for float64
	mmapped  []byte // full mapping, nil when heap-backed
}

var npyMagic = []byte("\x93NUMPY")

var npyHeaderRe = regexp.MustCompile(
	`'descr':\s*'([^']+)'.*'fortran_order':\s*(True|False).*'shape':\s*\((\d+)\s*,\s*(\d+)\s*,?\)`)

// OpenMatrix maps an NPY file (version 1 or 2, little-endian float32 or
// float64, C-order, 2D shape) into memory.
func OpenMatrix(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()

	preamble := make([]byte, 10)
	if _, err := f.ReadAt(preamble, 0); err != nil {
		return nil, fmt.Errorf("read npy preamble: %w", err)
	}
	for i, b := range npyMagic {
		if preamble[i] != b {
			return nil, fmt.Errorf("not an npy file: %s", path)
		}
	}

	major := preamble[6]
	var headerLen, headerStart int64
	switch major {
	case 1:
		headerLen = int64(binary.LittleEndian.Uint16(preamble[8:10]))
		headerStart = 10
	case 2, 3:
		ext := make([]byte, 4)
		if _, err := f.ReadAt(ext, 8); err != nil {
			return nil, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int64(binary.LittleEndian.Uint32(ext))
		headerStart = 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := f.ReadAt(header, headerStart); err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	m := npyHeaderRe.FindStringSubmatch(string(header))
	if m == nil {
		return nil, fmt.Errorf("unparseable npy header: %q", string(header))
	}
	var elemSize int
	switch m[1] {
	case "<f4":
		elemSize = 4
	case "<f8":
		elemSize = 8
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", m[1])
	}
	if m[2] == "True" {
		return nil, fmt.Errorf("fortran-order npy not supported")
	}
	rows, _ := strconv.Atoi(m[3])
	cols, _ := strconv.Atoi(m[4])

	dataOffset := headerStart + headerLen
	want := dataOffset + int64(rows)*int64(cols)*int64(elemSize)
	if size < want {
		return nil, fmt.Errorf("npy file truncated: have %d bytes, want %d", size, want)
	}

	mat := &Matrix{rows: rows, cols: cols, elemSize: elemSize}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		mat.mmapped = mapped
		mat.data = mapped[dataOffset:want]
		return mat, nil
	}

	log.Warn().Err(err).Str("path", path).Msg("mmap failed, loading matrix onto heap")
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mat.data = buf[dataOffset:want]
	return mat, nil
}

// Rows returns the number of rows in the matrix.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns in the matrix.
func (m *Matrix) Cols() int { return m.cols }

// Row decodes row i into a float64 slice. Out-of-range indices return nil.
func (m *Matrix) Row(i int) []float64 {
	if i < 0 || i >= m.rows {
		return nil
	}
	out := make([]float64, m.cols)
	base := i * m.cols * m.elemSize
	for j := 0; j < m.cols; j++ {
		off := base + j*m.elemSize
		if m.elemSize == 4 {
			out[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(m.data[off : off+4])))
		} else {
			out[j] = math.Float64frombits(binary.LittleEndian.Uint64(m.data[off : off+8]))
		}
	}
	return out
}

// Close releases the mapping. Safe to call on a heap-backed matrix.
func (m *Matrix) Close() error {
	if m.mmapped != nil {
		err := unix.Munmap(m.mmapped)
		m.mmapped = nil
		m.data = nil
		return err
	}
	return nil
}
