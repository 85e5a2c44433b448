package ldpc

import (
	"strings"
	"testing"
)

// repetitionCode returns the (3,2) single-parity-check code from the
// spec's first end-to-end scenario: H = [[1,1,1]].
func repetitionCode(t *testing.T) *ParityCheckCode {
	t.Helper()
	code, err := NewParityCheckCode(3, 1, [][]int{{0}, {0}, {0}})
	if err != nil {
		t.Fatalf("NewParityCheckCode: %v", err)
	}
	return code
}

// hammingCode returns the classic (7,4) Hamming code's parity check
// matrix as a ParityCheckCode fixture.
func hammingCode(t *testing.T) *ParityCheckCode {
	t.Helper()
	varToChecks := [][]int{
		{0},
		{1},
		{0, 1},
		{2},
		{0, 2},
		{1, 2},
		{0, 1, 2},
	}
	code, err := NewParityCheckCode(7, 3, varToChecks)
	if err != nil {
		t.Fatalf("NewParityCheckCode: %v", err)
	}
	return code
}

func TestNewParityCheckCodeDimensions(t *testing.T) {
	code := hammingCode(t)
	if code.N() != 7 {
		t.Errorf("N() = %d, want 7", code.N())
	}
	if code.M() != 3 {
		t.Errorf("M() = %d, want 3", code.M())
	}
	if code.NumEdges() != 12 {
		t.Errorf("NumEdges() = %d, want 12", code.NumEdges())
	}
}

func TestParityCheckCodeTranspose(t *testing.T) {
	code := hammingCode(t)
	for c := 0; c < code.M(); c++ {
		for _, v := range code.CheckVars(c) {
			found := false
			for _, ch := range code.VarChecks(v) {
				if ch == c {
					found = true
				}
			}
			if !found {
				t.Errorf("check %d lists variable %d, but variable %d does not list check %d", c, v, v, c)
			}
		}
	}
}

func TestNewParityCheckCodeRejectsOutOfRangeCheck(t *testing.T) {
	_, err := NewParityCheckCode(2, 1, [][]int{{0}, {5}})
	if err == nil {
		t.Fatal("expected an error for an out-of-range check index")
	}
	if se, ok := err.(*SimError); !ok || se.Kind != ConfigKind {
		t.Errorf("got %v, want a ConfigError", err)
	}
}

func TestNewParityCheckCodeRejectsWrongRowCount(t *testing.T) {
	_, err := NewParityCheckCode(3, 1, [][]int{{0}, {0}})
	if err == nil {
		t.Fatal("expected an error when the adjacency list row count doesn't match n")
	}
}

const hammingAlist = `7 3
3 4
1 1 2 1 2 2 3
4 4 4
1 0 0 0 0 0 0
2 0 0 0 0 0 0
1 2 0 0 0 0 0
3 0 0 0 0 0 0
1 3 0 0 0 0 0
2 3 0 0 0 0 0
1 2 3 0 0 0 0
1 3 5 7 0 0 0
2 3 6 7 0 0 0
4 5 6 7 0 0 0
`

func TestParseAlist(t *testing.T) {
	code, err := ParseAlist(strings.NewReader(hammingAlist))
	if err != nil {
		t.Fatalf("ParseAlist: %v", err)
	}
	if code.N() != 7 || code.M() != 3 {
		t.Fatalf("got n=%d m=%d, want n=7 m=3", code.N(), code.M())
	}
	want := hammingCode(t)
	for v := 0; v < code.N(); v++ {
		if len(code.VarChecks(v)) != len(want.VarChecks(v)) {
			t.Errorf("variable %d: got degree %d, want %d", v, len(code.VarChecks(v)), len(want.VarChecks(v)))
		}
	}
}
