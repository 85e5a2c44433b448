package simdriver

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madpsy/ldpcsim/ldpc"
)

func repetitionCode(t *testing.T) *ldpc.ParityCheckCode {
	t.Helper()
	code, err := ldpc.NewParityCheckCode(3, 1, [][]int{{0}, {0}, {0}})
	if err != nil {
		t.Fatalf("NewParityCheckCode: %v", err)
	}
	return code
}

// TestTrivialCodeAWGNSinglePoint is scenario 1 from the design's
// end-to-end list: a 3-bit single-parity-check code at 10dB should
// decode every frame in a single iteration.
func TestTrivialCodeAWGNSinglePoint(t *testing.T) {
	code := repetitionCode(t)
	sink := NewInMemorySink(1)
	d, err := New(Config{
		Code:             code,
		Sweep:            SweepSpec{Start: 10, Stop: 10.5, Step: 1.0},
		Threads:          1,
		Seed:             42,
		ChannelKind:      ldpc.AWGN,
		DecoderAlgorithm: ldpc.SumProduct,
		MinSumScale:      1,
		MaxIterations:    10,
		MaxFrames:        200,
		MinFEC:           1,
		EarlyTermination: true,
		Sinks:            []ResultsSink{sink},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(d.SweepPoints()) != 1 {
		t.Fatalf("got %d sweep points, want 1", len(d.SweepPoints()))
	}

	stop := &StopFlag{}
	if err := d.Start(stop); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if math.IsNaN(sink.BER[0]) || math.IsNaN(sink.FER[0]) {
		t.Fatalf("BER/FER should be finite, got BER=%v FER=%v", sink.BER[0], sink.FER[0])
	}
	if sink.AvgIterations[0] != 1 {
		t.Errorf("avg_iter = %v, want 1 (early termination on the first iteration at 10dB)", sink.AvgIterations[0])
	}
}

// TestBSCHalfCrossoverNeverConverges is scenario 2: at p=0.5 the channel
// LLRs are identically zero and the decoder should run to I_max on every
// frame without ever satisfying the syndrome.
func TestBSCHalfCrossoverNeverConverges(t *testing.T) {
	code := repetitionCode(t)
	sink := NewInMemorySink(1)
	d, err := New(Config{
		Code:             code,
		Sweep:            SweepSpec{Start: 0.5, Stop: 0.51, Step: 0.01},
		Threads:          1,
		Seed:             1,
		ChannelKind:      ldpc.BSC,
		DecoderAlgorithm: ldpc.SumProduct,
		MinSumScale:      1,
		MaxIterations:    5,
		MaxFrames:        100,
		MinFEC:           1000,
		EarlyTermination: true,
		Sinks:            []ResultsSink{sink},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := &StopFlag{}
	if err := d.Start(stop); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sink.TotalFrames[0] != 100 {
		t.Fatalf("frames = %d, want 100 (MaxFrames cutoff)", sink.TotalFrames[0])
	}
	if sink.AvgIterations[0] != 5 {
		t.Errorf("avg_iter = %v, want 5 (I_max, since p=0.5 LLRs never satisfy the syndrome)", sink.AvgIterations[0])
	}
}

// TestMaxFramesCutoff is scenario 3: a rare-error regime where MinFEC is
// unreachable inside MaxFrames.
func TestMaxFramesCutoff(t *testing.T) {
	code := repetitionCode(t)
	sink := NewInMemorySink(1)
	d, err := New(Config{
		Code:             code,
		Sweep:            SweepSpec{Start: 0.0001, Stop: 0.0002, Step: 0.0001},
		Threads:          1,
		Seed:             7,
		ChannelKind:      ldpc.BSC,
		DecoderAlgorithm: ldpc.SumProduct,
		MinSumScale:      1,
		MaxIterations:    10,
		MaxFrames:        100,
		MinFEC:           1000,
		EarlyTermination: true,
		Sinks:            []ResultsSink{sink},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(&StopFlag{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sink.TotalFrames[0] != 100 {
		t.Fatalf("frames = %d, want exactly MaxFrames=100", sink.TotalFrames[0])
	}
	if sink.TotalFEC[0] >= 1000 {
		t.Fatalf("frame_errors = %d, want < MinFEC=1000", sink.TotalFEC[0])
	}
	wantFER := float64(sink.TotalFEC[0]) / 100
	if sink.FER[0] != wantFER {
		t.Errorf("FER = %v, want frame_errors/frames = %v", sink.FER[0], wantFER)
	}
}

// TestStopFlagCancelsSweep is scenario 4: an externally raised stop flag
// must end the sweep without waiting for MinFEC, which here is set
// unreachably high.
func TestStopFlagCancelsSweep(t *testing.T) {
	code := repetitionCode(t)
	d, err := New(Config{
		Code:             code,
		Sweep:            SweepSpec{Start: 5, Stop: 6, Step: 1},
		Threads:          2,
		Seed:             3,
		ChannelKind:      ldpc.BSC,
		DecoderAlgorithm: ldpc.SumProduct,
		MinSumScale:      1,
		MaxIterations:    10,
		MaxFrames:        1_000_000_000,
		MinFEC:           1_000_000_000,
		EarlyTermination: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := &StopFlag{}
	done := make(chan error, 1)
	go func() { done <- d.Start(stop) }()

	time.Sleep(50 * time.Millisecond)
	stop.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return promptly after the stop flag was raised mid-sweep")
	}
}

func TestCounterReductionInvariant(t *testing.T) {
	code := repetitionCode(t)
	sink := NewInMemorySink(1)
	d, err := New(Config{
		Code:             code,
		Sweep:            SweepSpec{Start: 3, Stop: 4, Step: 1},
		Threads:          4,
		Seed:             11,
		ChannelKind:      ldpc.BSC,
		DecoderAlgorithm: ldpc.SumProduct,
		MinSumScale:      1,
		MaxIterations:    8,
		MaxFrames:        500,
		MinFEC:           1_000_000,
		EarlyTermination: true,
		Sinks:            []ResultsSink{sink},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(&StopFlag{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sink.TotalFrames[0] != 500 {
		t.Fatalf("frames = %d, want 500", sink.TotalFrames[0])
	}
	// bit_errors = BER * frames * n must not exceed the maximum possible
	// bit errors (every bit of every frame wrong).
	impliedBitErrors := sink.BER[0] * float64(sink.TotalFrames[0]) * float64(code.N())
	maxPossible := float64(sink.TotalFrames[0]) * float64(code.N())
	if impliedBitErrors > maxPossible+1e-9 {
		t.Errorf("bit_errors implied by BER (%v) exceeds frames*n (%v)", impliedBitErrors, maxPossible)
	}
}

func TestResultsFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.txt")

	sink, err := NewFileResultsSink(path, 1, true, false)
	if err != nil {
		t.Fatalf("NewFileResultsSink: %v", err)
	}
	sink.CompletePoint(ResultsSnapshot{
		PointIndex:    0,
		Param:         10.0,
		Frames:        200,
		FrameErrors:   1,
		BER:           0.0001,
		FER:           0.005,
		AvgIterations: 3.2,
	})

	header, rows, logFrameTime, err := ParseResultsFile(path)
	if err != nil {
		t.Fatalf("ParseResultsFile: %v", err)
	}
	reserialized := SerializeResultsFile(header, rows, logFrameTime)

	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading original file: %v", err)
	}
	if reserialized != string(original) {
		t.Errorf("round trip mismatch:\noriginal:\n%s\nreserialized:\n%s", original, reserialized)
	}
}
