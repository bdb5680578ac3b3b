package flat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"termsearch/internal/vectorstore"
)

var (
	// ErrDimension is returned when a vector does not match the index dimension.
	ErrDimension = errors.New("vector dimension mismatch")
	// ErrBadFormat is returned when a persisted index cannot be decoded.
	ErrBadFormat = errors.New("invalid index file")
)

const (
	version   uint32 = 1
	maxDim           = 1 << 16
	maxRows          = 1 << 28
	headerLen        = 4 + 4 + 4 + 8
	readChunk        = 1 << 14
)

var magic = [4]byte{'T', 'S', 'F', 'I'}

// Index is an exact inner-product index. Rows are L2-normalized on insert so
// the score of a normalized query equals cosine similarity.
type Index struct {
	dimension int
	// row-major, len(data) == rows*dimension
	data []float32
}

var _ vectorstore.Index = (*Index)(nil)

// New returns an empty index of the given dimension.
func New(dimension int) *Index { return &Index{dimension: dimension} }

// Build creates an index holding a normalized copy of every embedding.
func Build(embeddings [][]float32) (*Index, error) {
	if len(embeddings) == 0 {
		return New(0), nil
	}
	idx := New(len(embeddings[0]))
	if err := idx.Add(embeddings...); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add appends normalized copies of vectors. Either all vectors are added or none.
func (x *Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != x.dimension || len(v) == 0 {
			return fmt.Errorf("row %d has %d values, index has %d: %w", i, len(v), x.dimension, ErrDimension)
		}
	}
	for _, v := range vectors {
		start := len(x.data)
		x.data = append(x.data, v...)
		vectorstore.Normalize(x.data[start:])
	}
	return nil
}

// Len returns the number of rows.
func (x *Index) Len() int {
	if x.dimension == 0 {
		return 0
	}
	return len(x.data) / x.dimension
}

// Dimension returns the vector dimension.
func (x *Index) Dimension() int { return x.dimension }

// Row returns a copy of the stored (normalized) row i.
func (x *Index) Row(i int) []float32 {
	if i < 0 || i >= x.Len() {
		return nil
	}
	out := make([]float32, x.dimension)
	copy(out, x.data[i*x.dimension:(i+1)*x.dimension])
	return out
}

// Search returns up to k rows by descending inner product with the normalized
// query. Equal scores keep insertion order.
func (x *Index) Search(query []float32, k int) []vectorstore.Neighbor {
	n := x.Len()
	if k <= 0 || n == 0 || len(query) != x.dimension {
		return nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	vectorstore.Normalize(q)

	scores := make([]vectorstore.Neighbor, n)
	for i := 0; i < n; i++ {
		scores[i] = vectorstore.Neighbor{Score: dot(x.data[i*x.dimension:(i+1)*x.dimension], q), Row: i}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > n {
		k = n
	}
	return scores[:k]
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// WriteTo encodes the index: magic, version, dimension, row count, then the
// rows as little-endian float32.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	header := make([]byte, headerLen)
	copy(header, magic[:])
	binary.LittleEndian.PutUint32(header[4:], version)
	binary.LittleEndian.PutUint32(header[8:], uint32(x.dimension))
	binary.LittleEndian.PutUint64(header[12:], uint64(x.Len()))
	if _, err := bw.Write(header); err != nil {
		return 0, err
	}
	if err := binary.Write(bw, binary.LittleEndian, x.data); err != nil {
		return int64(headerLen), err
	}
	if err := bw.Flush(); err != nil {
		return int64(headerLen), err
	}
	return int64(headerLen + 4*len(x.data)), nil
}

// ReadFrom replaces the index contents with an index decoded from r.
func (x *Index) ReadFrom(r io.Reader) (int64, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("read header: %w", errors.Join(ErrBadFormat, err))
	}
	if [4]byte(header[:4]) != magic {
		return int64(headerLen), fmt.Errorf("bad magic %q: %w", header[:4], ErrBadFormat)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != version {
		return int64(headerLen), fmt.Errorf("unsupported version %d: %w", v, ErrBadFormat)
	}
	dim := binary.LittleEndian.Uint32(header[8:])
	rows := binary.LittleEndian.Uint64(header[12:])
	if dim > maxDim || rows > maxRows || (dim == 0 && rows != 0) {
		return int64(headerLen), fmt.Errorf("implausible shape %dx%d: %w", rows, dim, ErrBadFormat)
	}
	data, err := readValues(r, int(rows)*int(dim))
	if err != nil {
		return int64(headerLen + 4*len(data)), fmt.Errorf("read rows: %w", errors.Join(ErrBadFormat, err))
	}
	x.dimension = int(dim)
	x.data = data
	return int64(headerLen + 4*len(data)), nil
}

// readValues reads n float32 values in bounded chunks, so memory grows with
// the bytes actually present rather than with the count a header claims.
func readValues(r io.Reader, n int) ([]float32, error) {
	data := make([]float32, 0, min(n, readChunk))
	buf := make([]byte, 4*min(n, readChunk))
	for len(data) < n {
		m := min(n-len(data), readChunk)
		if _, err := io.ReadFull(r, buf[:4*m]); err != nil {
			return data, err
		}
		for i := 0; i < m; i++ {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
		}
	}
	return data, nil
}

// Save writes the index to path through a temporary file and a rename.
func (x *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := x.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads an index previously written by Save.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := checkSize(f); err != nil {
		return nil, err
	}
	x := &Index{}
	if _, err := x.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	return x, nil
}

// checkSize compares the file length with the shape its header declares.
func checkSize(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header: %w", errors.Join(ErrBadFormat, err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dim := uint64(binary.LittleEndian.Uint32(header[8:]))
	rows := binary.LittleEndian.Uint64(header[12:])
	if dim > maxDim || rows > maxRows {
		return fmt.Errorf("implausible shape %dx%d: %w", rows, dim, ErrBadFormat)
	}
	if want := uint64(headerLen) + 4*rows*dim; uint64(info.Size()) != want {
		return fmt.Errorf("file is %d bytes, header declares %d: %w", info.Size(), want, ErrBadFormat)
	}
	return nil
}
