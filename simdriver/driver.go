package simdriver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/madpsy/ldpcsim/ldpc"
)

// SimDriver orchestrates a sweep over channel parameters using a pool of
// T independent Channel/BPDecoder worker pairs, accumulating the
// bit/frame error counters spec.md describes and deciding per-point
// termination. One SimDriver is constructed per run and discarded once
// Start returns.
type SimDriver struct {
	code *ldpc.ParityCheckCode

	channels []*ldpc.Channel
	decoders []*ldpc.BPDecoder

	sweep  []float64
	seed   int64
	iMax   int
	maxFrm uint64
	minFEC uint64

	sinks   []ResultsSink
	metrics *SimMetrics

	runID string

	// per-point counters, reset at the start of each sweep point.
	frames        atomic.Uint64
	iterationsSum atomic.Uint64
	frameErrors   atomic.Uint64

	mu             sync.Mutex
	bitErrors      uint64
	pointStart     time.Time
	pointIndex     int
	totalPoints    int
	latestSnapshot ResultsSnapshot
	haveSnapshot   bool
}

// Config bundles the construction parameters named in the design's
// external interfaces section.
type Config struct {
	Code              *ldpc.ParityCheckCode
	Sweep             SweepSpec
	Threads           int
	Seed              int64
	ChannelKind       ldpc.ChannelKind
	DecoderAlgorithm  ldpc.DecoderAlgorithm
	MinSumScale       float64
	MaxIterations     int
	MaxFrames         uint64
	MinFEC            uint64
	EarlyTermination  bool
	Sinks             []ResultsSink
	Metrics           *SimMetrics
}

// New allocates Threads independent Channel/BPDecoder pairs and
// validates the sweep triple (step > 0, start < stop) before any frame
// is simulated.
func New(cfg Config) (*SimDriver, error) {
	if cfg.Threads < 1 {
		return nil, ldpc.ConfigErrorf("worker count must be at least 1, got %d", cfg.Threads)
	}
	if cfg.Sweep.Step <= 0 {
		return nil, ldpc.ConfigErrorf("sweep step must be positive, got %v", cfg.Sweep.Step)
	}
	if cfg.Sweep.Stop <= cfg.Sweep.Start {
		return nil, ldpc.ConfigErrorf("sweep stop (%v) must be greater than start (%v)", cfg.Sweep.Stop, cfg.Sweep.Start)
	}
	if cfg.MaxFrames < 1 {
		return nil, ldpc.ConfigErrorf("max frames must be at least 1, got %d", cfg.MaxFrames)
	}
	if cfg.MinFEC < 1 {
		return nil, ldpc.ConfigErrorf("min FEC must be at least 1, got %d", cfg.MinFEC)
	}

	channels := make([]*ldpc.Channel, cfg.Threads)
	decoders := make([]*ldpc.BPDecoder, cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		ch, err := ldpc.NewChannel(cfg.ChannelKind, cfg.Code.N(), cfg.Code.Rate(), cfg.Seed, i)
		if err != nil {
			return nil, err
		}
		dec, err := ldpc.NewBPDecoder(cfg.Code, cfg.MaxIterations, cfg.EarlyTermination, cfg.DecoderAlgorithm, cfg.MinSumScale)
		if err != nil {
			return nil, err
		}
		channels[i] = ch
		decoders[i] = dec
	}

	points := cfg.Sweep.Points()

	return &SimDriver{
		code:        cfg.Code,
		channels:    channels,
		decoders:    decoders,
		sweep:       points,
		seed:        cfg.Seed,
		iMax:        cfg.MaxIterations,
		maxFrm:      cfg.MaxFrames,
		minFEC:      cfg.MinFEC,
		sinks:       cfg.Sinks,
		metrics:     cfg.Metrics,
		runID:       uuid.NewString(),
		totalPoints: len(points),
	}, nil
}

// RunID returns the identifier this driver's run is tagged with. It is
// carried in every ResultsSnapshot handed to the sinks and reported by the
// MCP status tool, so independent runs are distinguishable.
func (d *SimDriver) RunID() string { return d.runID }

// SweepPoints returns the expanded sweep parameter sequence.
func (d *SimDriver) SweepPoints() []float64 { return d.sweep }

// LatestSnapshot returns the most recently computed ResultsSnapshot and
// true, or a zero value and false if no snapshot has been taken yet.
// Snapshots are taken on every error frame and at the end of every sweep
// point, not on error-free frames. Safe
// to call concurrently with a running sweep, for status reporting such
// as the MCP get_sweep_status tool.
func (d *SimDriver) LatestSnapshot() (ResultsSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latestSnapshot, d.haveSnapshot
}

// StopFlag is the externally-toggled cancellation cell every worker
// polls at the bottom of its inner loop.
type StopFlag struct {
	flag atomic.Bool
}

// Stop raises the flag; workers exit within one decode of observing it.
func (f *StopFlag) Stop() { f.flag.Store(true) }

// Stopped reports whether Stop has been called.
func (f *StopFlag) Stopped() bool { return f.flag.Load() }

// Start runs the full sweep, fanning out T workers per point, and
// returns once every point has completed or the stop flag is observed.
// It is safe to call exactly once; the driver is meant to be discarded
// afterward.
func (d *SimDriver) Start(stopFlag *StopFlag) error {
	for idx, param := range d.sweep {
		if stopFlag.Stopped() {
			break
		}
		d.runPoint(idx, param, stopFlag)
		if stopFlag.Stopped() {
			break
		}
	}
	for _, s := range d.sinks {
		s.Close()
	}
	return nil
}

func (d *SimDriver) runPoint(idx int, param float64, stopFlag *StopFlag) {
	d.frames.Store(0)
	d.iterationsSum.Store(0)
	d.frameErrors.Store(0)
	d.bitErrors = 0
	d.pointIndex = idx

	d.mu.Lock()
	d.pointStart = time.Now()
	d.mu.Unlock()

	for _, ch := range d.channels {
		ch.SetParameter(param)
	}

	var wg sync.WaitGroup
	wg.Add(len(d.channels))
	for w := range d.channels {
		go func(worker int) {
			defer wg.Done()
			d.workerLoop(worker, idx, param, stopFlag)
		}(w)
	}
	wg.Wait()

	snapshot := d.snapshot(param)
	for _, s := range d.sinks {
		s.CompletePoint(snapshot)
	}
	if d.metrics != nil {
		d.metrics.Observe(snapshot)
	}
}

// workerLoop is the per-worker inner loop of design clause 2: simulate a
// frame, decode it, count bit errors against the all-zero reference, and
// check termination after every decoded frame. Workers share only the
// ParityCheckCode (read-only) and the counters guarded as described on
// SimDriver; everything else here is worker-private.
func (d *SimDriver) workerLoop(worker, pointIdx int, param float64, stopFlag *StopFlag) {
	ch := d.channels[worker]
	dec := d.decoders[worker]

	for {
		ch.Simulate()
		ch.ComputeLLRs(dec.ChannelLLRs())
		iters := dec.Decode()

		var bitErrs uint64
		for _, llr := range dec.OutputLLRs() {
			if llr <= 0 {
				bitErrs++
			}
		}

		frames := d.frames.Add(1)
		if frames > d.maxFrm {
			// Another worker already reached MaxFrames while this frame
			// was being decoded: the frame is not counted, so the frame
			// total never exceeds MaxFrames.
			d.frames.Add(^uint64(0))
			return
		}
		d.iterationsSum.Add(uint64(iters))

		if bitErrs > 0 {
			d.recordErrorFrame(bitErrs, pointIdx, param)
		}

		frameErrors := d.frameErrors.Load()
		if frameErrors >= d.minFEC || frames >= d.maxFrm || stopFlag.Stopped() {
			return
		}
	}
}

// recordErrorFrame is the critical section of design clause 4: fold the
// worker-local bit-error tally into the shared total, recompute derived
// metrics, and hand a snapshot to every sink. time_start is nudged
// forward by however long this section takes, so per-frame timing
// excludes sink I/O.
func (d *SimDriver) recordErrorFrame(bitErrs uint64, pointIdx int, param float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	critStart := time.Now()
	d.bitErrors += bitErrs
	d.frameErrors.Add(1)
	snapshot := d.snapshotLocked(param)

	for _, s := range d.sinks {
		s.RecordErrorEvent(snapshot)
	}
	if d.metrics != nil {
		d.metrics.Observe(snapshot)
	}

	d.pointStart = d.pointStart.Add(time.Since(critStart))
}

// snapshot takes the mutex before reading fields recordErrorFrame also
// guards, for use outside the critical section (e.g. at point
// completion).
func (d *SimDriver) snapshot(param float64) ResultsSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked(param)
}

func (d *SimDriver) snapshotLocked(param float64) ResultsSnapshot {
	frames := d.frames.Load()
	frameErrors := d.frameErrors.Load()
	iterSum := d.iterationsSum.Load()

	var ber, fer, avgIters float64
	var meanFrameTime time.Duration
	if frames > 0 {
		ber = float64(d.bitErrors) / float64(frames*uint64(d.code.N()))
		fer = float64(frameErrors) / float64(frames)
		avgIters = float64(iterSum) / float64(frames)
		meanFrameTime = time.Since(d.pointStart) / time.Duration(frames)
	}

	snapshot := ResultsSnapshot{
		RunID:         d.runID,
		PointIndex:    d.pointIndex,
		TotalPoints:   d.totalPoints,
		Param:         param,
		Frames:        frames,
		FrameErrors:   frameErrors,
		BitErrors:     d.bitErrors,
		BER:           ber,
		FER:           fer,
		AvgIterations: avgIters,
		MeanFrameTime: meanFrameTime,
		MinFEC:        d.minFEC,
		MaxFrames:     d.maxFrm,
	}
	d.latestSnapshot = snapshot
	d.haveSnapshot = true
	return snapshot
}
