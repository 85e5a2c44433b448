package ldpc

import "math"

// DecoderAlgorithm selects the check-node update rule. The original
// source picked this at compile time (a MIN_SUM build flag); here it is
// a runtime configuration choice, per the design note that build-time
// switches should become runtime options wherever feasible.
type DecoderAlgorithm int

const (
	// SumProduct computes the exact check-to-variable update via
	// tanh/atanh, clamped away from +-1.
	SumProduct DecoderAlgorithm = iota
	// MinSum approximates the check-to-variable update with a
	// sign/min-magnitude rule, optionally attenuated by a scale factor
	// to compensate for min-sum's known overconfidence.
	MinSum
)

// ParseDecoderAlgorithm maps a configuration string to a DecoderAlgorithm.
func ParseDecoderAlgorithm(s string) (DecoderAlgorithm, error) {
	switch s {
	case "sum_product", "sum-product", "":
		return SumProduct, nil
	case "min_sum", "min-sum":
		return MinSum, nil
	default:
		return 0, configErrorf("unknown decoder algorithm %q", s)
	}
}

// tanhClampEps bounds tanh() arguments away from +-1 before atanh() is
// applied, per the numerical policy in the design: atanh saturates at
// +-Inf exactly at +-1, so every product is clamped to
// [-(1-eps), 1-eps] first.
const tanhClampEps = 1.0 - 1.0/(1<<30)

// satMagnitude is the message magnitude a degree-one check saturates to
// in both algorithms: the same bound the sum-product path reaches via
// 2*atanh(tanhClampEps) when its product of incoming tanh terms is the
// empty product (1). Min-sum must saturate to this same value for a
// degree-one check, not to tanhClampEps itself, or it would propagate an
// essentially zero-confidence message instead of a saturating one.
var satMagnitude = 2 * math.Atanh(tanhClampEps)

// BPDecoder runs iterative belief propagation (sum-product or min-sum) on
// the Tanner graph of a ParityCheckCode. One instance is owned exclusively
// by one simulation worker; it is reused, call after call, across every
// frame that worker decodes.
type BPDecoder struct {
	code *ParityCheckCode

	maxIters    int
	earlyTerm   bool
	algorithm   DecoderAlgorithm
	minSumScale float64

	channelLLR []float64
	outputLLR  []float64

	vToC []float64 // edge-indexed variable-to-check messages
	cToV []float64 // edge-indexed check-to-variable messages

	hard     []uint8
	syndrome []uint8

	// scratch buffers reused across check-node updates, sized to the
	// largest check degree in the code so no allocation happens on the
	// hot path.
	scratchPrefix []float64
	scratchSuffix []float64
	scratchSign   []int8
}

// NewBPDecoder constructs a decoder bound to code, configured with a
// maximum iteration count, an early-termination flag, and a check-node
// update algorithm. minSumScale is ignored unless algorithm is MinSum.
func NewBPDecoder(code *ParityCheckCode, maxIters int, earlyTerm bool, algorithm DecoderAlgorithm, minSumScale float64) (*BPDecoder, error) {
	if maxIters <= 0 {
		return nil, configErrorf("max iterations must be positive, got %d", maxIters)
	}
	if algorithm == MinSum && minSumScale <= 0 {
		return nil, configErrorf("min-sum scale must be positive, got %v", minSumScale)
	}

	maxCheckDegree := 0
	for c := 0; c < code.M(); c++ {
		if d := len(code.CheckVars(c)); d > maxCheckDegree {
			maxCheckDegree = d
		}
	}

	return &BPDecoder{
		code:          code,
		maxIters:      maxIters,
		earlyTerm:     earlyTerm,
		algorithm:     algorithm,
		minSumScale:   minSumScale,
		channelLLR:    make([]float64, code.N()),
		outputLLR:     make([]float64, code.N()),
		vToC:          make([]float64, code.NumEdges()),
		cToV:          make([]float64, code.NumEdges()),
		hard:          make([]uint8, code.N()),
		syndrome:      make([]uint8, code.M()),
		scratchPrefix: make([]float64, maxCheckDegree+1),
		scratchSuffix: make([]float64, maxCheckDegree+1),
		scratchSign:   make([]int8, maxCheckDegree+1),
	}, nil
}

// ChannelLLRs returns the input buffer a Channel should write its
// per-bit LLRs into before Decode is called.
func (d *BPDecoder) ChannelLLRs() []float64 { return d.channelLLR }

// OutputLLRs returns the a posteriori LLR buffer, valid after Decode
// returns.
func (d *BPDecoder) OutputLLRs() []float64 { return d.outputLLR }

// Syndrome returns the per-check syndrome buffer, valid after Decode
// returns.
func (d *BPDecoder) Syndrome() []uint8 { return d.syndrome }

// Decode runs up to maxIters rounds of belief propagation against the
// current contents of ChannelLLRs, returning the number of iterations
// actually executed (always in [1, maxIters]). If early termination is
// enabled and the current hard decisions form a codeword, Decode returns
// immediately with that iteration's count; every syndrome bit is then
// guaranteed zero.
func (d *BPDecoder) Decode() int {
	n, m := d.code.N(), d.code.M()

	for i := range d.vToC {
		d.vToC[i] = 0
		d.cToV[i] = 0
	}

	iter := 0
	for iter = 1; iter <= d.maxIters; iter++ {
		// Variable-to-check: S(v) = channelLLR(v) + sum of incoming
		// c->v messages; outgoing msg(v->c) = S(v) - msg(c->v).
		for v := 0; v < n; v++ {
			edges := d.code.varEdge[v]
			s := d.channelLLR[v]
			for _, e := range edges {
				s += d.cToV[e]
			}
			for _, e := range edges {
				d.vToC[e] = s - d.cToV[e]
			}
		}

		if d.algorithm == SumProduct {
			d.updateChecksSumProduct()
		} else {
			d.updateChecksMinSum()
		}

		// A posteriori update.
		for v := 0; v < n; v++ {
			llr := d.channelLLR[v]
			for _, e := range d.code.varEdge[v] {
				llr += d.cToV[e]
			}
			d.outputLLR[v] = llr
		}

		// Hard decision & syndrome.
		for v := 0; v < n; v++ {
			if d.outputLLR[v] <= 0 {
				d.hard[v] = 1
			} else {
				d.hard[v] = 0
			}
		}
		allZero := true
		for c := 0; c < m; c++ {
			var x uint8
			for _, v := range d.code.CheckVars(c) {
				x ^= d.hard[v]
			}
			d.syndrome[c] = x
			if x != 0 {
				allZero = false
			}
		}

		if d.earlyTerm && allZero {
			return iter
		}
	}
	return d.maxIters
}

func clampTanhArg(t float64) float64 {
	if t > tanhClampEps {
		return tanhClampEps
	}
	if t < -tanhClampEps {
		return -tanhClampEps
	}
	return t
}

// updateChecksSumProduct computes, for every check c and every incident
// edge, the product of tanh(msg/2) over every other incident edge using a
// prefix/suffix scan so each check costs O(degree) instead of
// O(degree^2), and without the division-by-zero hazard a naive
// "divide out my own factor" approach has when some incident message is
// exactly zero.
func (d *BPDecoder) updateChecksSumProduct() {
	for c := 0; c < d.code.M(); c++ {
		edges := d.code.checkEdge[c]
		k := len(edges)
		if k == 0 {
			continue
		}
		prefix := d.scratchPrefix[:k+1]
		suffix := d.scratchSuffix[:k+1]
		prefix[0] = 1
		for i := 0; i < k; i++ {
			t := clampTanhArg(math.Tanh(d.vToC[edges[i]] / 2))
			prefix[i+1] = prefix[i] * t
		}
		suffix[k] = 1
		for i := k - 1; i >= 0; i-- {
			t := clampTanhArg(math.Tanh(d.vToC[edges[i]] / 2))
			suffix[i] = suffix[i+1] * t
		}
		for i := 0; i < k; i++ {
			product := clampTanhArg(prefix[i] * suffix[i+1])
			d.cToV[edges[i]] = 2 * math.Atanh(product)
		}
	}
}

// updateChecksMinSum applies the min-sum approximation: the outgoing
// message's sign is the product of incoming signs (excluding the
// destination edge) and its magnitude is the minimum incoming magnitude
// (excluding the destination edge), attenuated by minSumScale to correct
// for min-sum's characteristic overconfidence relative to sum-product.
func (d *BPDecoder) updateChecksMinSum() {
	for c := 0; c < d.code.M(); c++ {
		edges := d.code.checkEdge[c]
		k := len(edges)
		if k == 0 {
			continue
		}

		signPrefix := d.scratchSign[:k+1]
		signPrefix[0] = 1
		mags := d.scratchPrefix[:k]
		for i := 0; i < k; i++ {
			x := d.vToC[edges[i]]
			mags[i] = math.Abs(x)
			sign := int8(1)
			if x < 0 {
				sign = -1
			}
			signPrefix[i+1] = signPrefix[i] * sign
		}
		totalSign := signPrefix[k]

		min1, min2 := math.Inf(1), math.Inf(1)
		min1Idx := -1
		for i := 0; i < k; i++ {
			if mags[i] < min1 {
				min2 = min1
				min1 = mags[i]
				min1Idx = i
			} else if mags[i] < min2 {
				min2 = mags[i]
			}
		}

		for i := 0; i < k; i++ {
			excludedMag := min1
			if i == min1Idx {
				excludedMag = min2
			}
			if math.IsInf(excludedMag, 1) {
				// Degree-one check: no other incident edge to
				// derive a magnitude from. Saturate to the same
				// magnitude the sum-product path reaches for this
				// edge case instead of propagating +Inf.
				excludedMag = satMagnitude
			}

			x := d.vToC[edges[i]]
			sign := int8(1)
			if x < 0 {
				sign = -1
			}
			excludedSign := totalSign / sign

			d.cToV[edges[i]] = float64(excludedSign) * excludedMag * d.minSumScale
		}
	}
}
