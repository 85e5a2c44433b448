package ldpc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParityCheckCode is an immutable sparse representation of an LDPC parity
// check matrix H, held as adjacency lists on both sides of the Tanner
// graph. Once built it is never mutated; a SimDriver hands the same
// instance to every worker.
type ParityCheckCode struct {
	n int // code length (variable nodes)
	m int // number of parity checks (check nodes)

	varToChecks [][]int // varToChecks[v] = check indices incident to v, in the order given at construction
	checkToVars [][]int // checkToVars[c] = variable indices incident to c, in ascending order

	// varEdge and checkEdge map (v, position in varToChecks[v]) and
	// (c, position in checkToVars[c]) to a shared global edge index; built once so
	// the decoder can index its message arrays by edge without a map
	// lookup on the hot path.
	varEdge   [][]int // varEdge[v][i] = edge id for varToChecks[v][i]
	checkEdge [][]int // checkEdge[c][j] = edge id for checkToVars[c][j]
	numEdges  int

	rate float64
}

// N returns the code length (number of coded bits / variable nodes).
func (c *ParityCheckCode) N() int { return c.n }

// M returns the number of parity checks.
func (c *ParityCheckCode) M() int { return c.m }

// Rate returns (n-m)/n, the design rate of the code assuming H has full
// row rank.
func (c *ParityCheckCode) Rate() float64 { return c.rate }

// VarChecks returns the (read-only) list of check indices incident to
// variable node v.
func (c *ParityCheckCode) VarChecks(v int) []int { return c.varToChecks[v] }

// CheckVars returns the (read-only) list of variable indices incident to
// check node idx.
func (c *ParityCheckCode) CheckVars(idx int) []int { return c.checkToVars[idx] }

// NumEdges returns the number of edges in the Tanner graph, i.e. the
// number of ones in H.
func (c *ParityCheckCode) NumEdges() int { return c.numEdges }

// NewParityCheckCode builds and validates a code from explicit adjacency
// lists (variable-node-major). Each entry of varToChecks lists the check
// indices, in [0,m), incident to that variable; it must be the exact
// transpose of the check-to-variable incidence implied by H.
func NewParityCheckCode(n, m int, varToChecks [][]int) (*ParityCheckCode, error) {
	if n <= 0 || m <= 0 {
		return nil, configErrorf("code dimensions must be positive, got n=%d m=%d", n, m)
	}
	if len(varToChecks) != n {
		return nil, configErrorf("expected %d variable adjacency rows, got %d", n, len(varToChecks))
	}

	checkToVars := make([][]int, m)
	for v, checks := range varToChecks {
		for _, c := range checks {
			if c < 0 || c >= m {
				return nil, configErrorf("variable %d references out-of-range check %d", v, c)
			}
			checkToVars[c] = append(checkToVars[c], v)
		}
	}

	code := &ParityCheckCode{
		n:           n,
		m:           m,
		varToChecks: make([][]int, n),
		checkToVars: checkToVars,
		rate:        float64(n-m) / float64(n),
	}

	edgeID := 0
	code.varEdge = make([][]int, n)
	code.checkEdge = make([][]int, m)
	checkCursor := make([]int, m)

	for v := 0; v < n; v++ {
		code.varToChecks[v] = append([]int(nil), varToChecks[v]...)
		code.varEdge[v] = make([]int, len(varToChecks[v]))
		for i, ch := range varToChecks[v] {
			id := edgeID
			edgeID++
			code.varEdge[v][i] = id
			if code.checkEdge[ch] == nil {
				code.checkEdge[ch] = make([]int, len(checkToVars[ch]))
			}
			code.checkEdge[ch][checkCursor[ch]] = id
			checkCursor[ch]++
		}
	}
	code.numEdges = edgeID

	if err := code.validate(); err != nil {
		return nil, err
	}
	return code, nil
}

func (c *ParityCheckCode) validate() error {
	for v, checks := range c.varToChecks {
		for _, ch := range checks {
			if ch < 0 || ch >= c.m {
				return configErrorf("variable %d has out-of-range check index %d", v, ch)
			}
		}
	}
	seen := make([]int, c.n)
	for _, vars := range c.checkToVars {
		for _, v := range vars {
			if v < 0 || v >= c.n {
				return configErrorf("check references out-of-range variable %d", v)
			}
			seen[v]++
		}
	}
	for v, count := range seen {
		if count != len(c.varToChecks[v]) {
			return configErrorf("adjacency lists are not consistent transposes at variable %d", v)
		}
	}
	return nil
}

// LoadAlist builds a ParityCheckCode from a file in the widely used alist
// sparse-matrix format: dimensions and degree headers followed by
// per-variable and per-check 1-indexed neighbor lists padded with zeros.
// The alist grammar is an external collaborator per the design's scope
// note; this reader is the minimal implementation sufficient to drive the
// core, not a hardened parser.
func LoadAlist(path string) (*ParityCheckCode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf(err, "opening alist file %q", path)
	}
	defer f.Close()

	code, err := ParseAlist(f)
	if err != nil {
		return nil, ioErrorf(err, "parsing alist file %q", path)
	}
	return code, nil
}

// ParseAlist reads the alist format from an arbitrary reader.
func ParseAlist(r io.Reader) (*ParityCheckCode, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	readInts := func() ([]int, error) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			out := make([]int, 0, len(fields))
			for _, f := range fields {
				v, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("invalid integer %q: %w", f, err)
				}
				out = append(out, v)
			}
			return out, nil
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	dims, err := readInts()
	if err != nil {
		return nil, fmt.Errorf("reading dimensions: %w", err)
	}
	if len(dims) < 2 {
		return nil, fmt.Errorf("dimensions line must have n and m")
	}
	n, m := dims[0], dims[1]

	// Max column/row weight line — not needed beyond skipping it.
	if _, err := readInts(); err != nil {
		return nil, fmt.Errorf("reading max weights: %w", err)
	}
	// Column (variable) degree list.
	if _, err := readInts(); err != nil {
		return nil, fmt.Errorf("reading column degrees: %w", err)
	}
	// Row (check) degree list.
	if _, err := readInts(); err != nil {
		return nil, fmt.Errorf("reading row degrees: %w", err)
	}

	varToChecks := make([][]int, n)
	for v := 0; v < n; v++ {
		row, err := readInts()
		if err != nil {
			return nil, fmt.Errorf("reading variable %d neighbor list: %w", v, err)
		}
		checks := make([]int, 0, len(row))
		for _, x := range row {
			if x == 0 {
				continue
			}
			checks = append(checks, x-1)
		}
		varToChecks[v] = checks
	}

	return NewParityCheckCode(n, m, varToChecks)
}
