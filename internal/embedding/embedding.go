// Package embedding loads the pretrained token-embedding artifact (an
// immutable mapping "token → dense float vector") and exposes the
// token-distance function the approximate search kernel uses as its
// substitution cost. Training the embedding is out of scope — this package
// only reads the artifact an external trainer produced.
package embedding

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Index names a row in the embedding matrix, or OOV when the token has no
// vocabulary entry.
type Index int32

// OOV is the sentinel for a token absent from the vocabulary.
const OOV Index = -1

// magic and endianSentinel guard against loading a matrix built with the
// opposite byte order than this process uses.
var magic = [4]byte{'C', 'V', 'E', 'W'}

const (
	formatVersion  = uint16(1)
	endianSentinel = uint32(0x01020304)
)

// Table is the read-only embedding: a vocabulary count V, a vector
// dimension D, and a V×D row-major float32 matrix.
type Table struct {
	vocab   map[string]Index
	dim     int
	vectors []float32 // len == vocabCount*dim

	// defaultDistance is substituted whenever either operand is OOV.
	defaultDistance float64
}

// Dim returns the vector dimension D.
func (t *Table) Dim() int { return t.dim }

// Len returns the vocabulary count V.
func (t *Table) Len() int { return len(t.vectors) / max(t.dim, 1) }

// Load reads an embedding artifact directory: "vocab.json" (a token→row-index
// map) and "vectors.bin" (the binary matrix, see Save for the exact layout).
// defaultDistance is used whenever either operand of Distance is OOV (or has
// an all-zero row); Load applies no default of its own. cmd/cvematch passes
// the larger of the insertion and deletion costs, so an OOV substitution
// costs as much as one insertion or deletion.
func Load(dir string, defaultDistance float64) (*Table, error) {
	vocabPath := filepath.Join(dir, "vocab.json")
	vocabData, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read vocab %s: %w", vocabPath, err)
	}
	var vocab map[string]int32
	if err := json.Unmarshal(vocabData, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab %s: %w", vocabPath, err)
	}

	matPath := filepath.Join(dir, "vectors.bin")
	f, err := os.Open(matPath)
	if err != nil {
		return nil, fmt.Errorf("open vectors %s: %w", matPath, err)
	}
	defer f.Close()

	r := &binReader{r: bufio.NewReader(f)}
	var gotMagic [4]byte
	r.read(&gotMagic)
	if gotMagic != magic {
		return nil, fmt.Errorf("%s: bad magic — not a cvematch embedding artifact", matPath)
	}
	version := r.readU16()
	if version != formatVersion {
		return nil, fmt.Errorf("%s: unsupported format version %d", matPath, version)
	}
	sentinel := r.readU32()
	if sentinel != endianSentinel {
		return nil, fmt.Errorf("%s: endianness mismatch — artifact was built on a different byte order than this host", matPath)
	}
	vocabCount := int(r.readU32())
	dim := int(r.readU32())
	if r.err != nil {
		return nil, fmt.Errorf("%s: read header: %w", matPath, r.err)
	}

	vectors := make([]float32, vocabCount*dim)
	for i := range vectors {
		vectors[i] = r.readF32()
	}
	if r.err != nil {
		return nil, fmt.Errorf("%s: read matrix: %w", matPath, r.err)
	}

	tbl := &Table{
		vocab:           make(map[string]Index, len(vocab)),
		dim:             dim,
		vectors:         vectors,
		defaultDistance: defaultDistance,
	}
	for k, v := range vocab {
		tbl.vocab[k] = Index(v)
	}
	return tbl, nil
}

// Save writes an embedding artifact directory in the format Load expects.
// It exists for building test fixtures and small offline conversion tools;
// training the vectors themselves remains an external concern.
func Save(dir string, vocab map[string]int32, dim int, vectors []float32) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	vocabData, err := json.Marshal(vocab)
	if err != nil {
		return fmt.Errorf("marshal vocab: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), vocabData, 0o644); err != nil {
		return fmt.Errorf("write vocab: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "vectors.bin"))
	if err != nil {
		return fmt.Errorf("create vectors.bin: %w", err)
	}
	defer f.Close()

	w := &binWriter{w: f}
	w.write(magic)
	w.writeU16(formatVersion)
	w.writeU32(endianSentinel)
	w.writeU32(uint32(len(vocab)))
	w.writeU32(uint32(dim))
	for _, v := range vectors {
		w.writeF32(v)
	}
	return w.err
}

// Index returns the vocabulary row for tok, or OOV if absent.
func (t *Table) Index(tok string) Index {
	if i, ok := t.vocab[tok]; ok {
		return i
	}
	return OOV
}

// Vector returns a view of the D floats at row i. Callers must not retain
// the slice past the Table's lifetime expectations (it aliases the matrix).
func (t *Table) Vector(i Index) []float32 {
	if i < 0 {
		return nil
	}
	start := int(i) * t.dim
	return t.vectors[start : start+t.dim]
}

// Distance returns the token-to-token substitution cost used by the search
// kernel: the configured default if either index is OOV or either row is all
// zeros, 0 for identical indices, and the clamped cosine distance 1-cos(u,v)
// otherwise, in [0,2].
func (t *Table) Distance(a, b Index) float64 {
	if a == OOV || b == OOV {
		return t.defaultDistance
	}
	if a == b {
		return 0
	}
	u, v := t.Vector(a), t.Vector(b)
	var dot, normU, normV float64
	for i := range u {
		fu, fv := float64(u[i]), float64(v[i])
		dot += fu * fv
		normU += fu * fu
		normV += fv * fv
	}
	if normU == 0 || normV == 0 {
		return t.defaultDistance
	}
	cos := dot / (math.Sqrt(normU) * math.Sqrt(normV))
	dist := 1 - cos
	if dist < 0 && dist > -1e-6 {
		dist = 0
	}
	if dist < 0 {
		dist = 0
	}
	if dist > 2 {
		dist = 2
	}
	return dist
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// binWriter and binReader are little-endian accumulate-first-error helpers
// for the vectors.bin format.

type binWriter struct {
	w   *os.File
	err error
}

func (bw *binWriter) write(v any) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}
func (bw *binWriter) writeU16(v uint16)  { bw.write(v) }
func (bw *binWriter) writeU32(v uint32)  { bw.write(v) }
func (bw *binWriter) writeF32(v float32) { bw.write(v) }

type binReader struct {
	r   *bufio.Reader
	err error
}

func (br *binReader) read(v any) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}
func (br *binReader) readU16() uint16 {
	var v uint16
	br.read(&v)
	return v
}
func (br *binReader) readU32() uint32 {
	var v uint32
	br.read(&v)
	return v
}
func (br *binReader) readF32() float32 {
	var v float32
	br.read(&v)
	return v
}
