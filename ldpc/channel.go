package ldpc

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// ChannelKind selects the stochastic channel model a Channel simulates.
type ChannelKind int

const (
	// AWGN is an additive-white-Gaussian-noise channel over BPSK,
	// parameterized by an Eb/N0 in dB.
	AWGN ChannelKind = iota
	// BSC is a binary symmetric channel, parameterized by a crossover
	// probability in [0, 0.5].
	BSC
)

func (k ChannelKind) String() string {
	switch k {
	case AWGN:
		return "awgn"
	case BSC:
		return "bsc"
	default:
		return "unknown"
	}
}

// ParseChannelKind maps a configuration string to a ChannelKind.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch s {
	case "awgn", "AWGN":
		return AWGN, nil
	case "bsc", "BSC":
		return BSC, nil
	default:
		return 0, configErrorf("unknown channel kind %q", s)
	}
}

// Channel is the per-worker stochastic source of received vectors and
// log-likelihood ratios. It owns its own PRNG so that, given the same
// seed and the same sequence of SetParameter/Simulate calls, it always
// produces the same sequence of received vectors — a worker's own
// trajectory is reproducible even though interleavings across workers are
// not.
type Channel struct {
	kind ChannelKind
	n    int
	rate float64

	sigma float64 // AWGN noise standard deviation, derived from the Eb/N0 parameter
	p     float64 // BSC crossover probability

	rng *rand.Rand

	received []float64 // received[i] = +1+noise for AWGN, in {0,1} for BSC
}

// NewChannel constructs a Channel of the given kind for a code of length n
// and rate `rate`, seeded deterministically from (baseSeed, workerID) per
// the design's seeding rule.
func NewChannel(kind ChannelKind, n int, rate float64, baseSeed int64, workerID int) (*Channel, error) {
	if n <= 0 {
		return nil, configErrorf("channel code length must be positive, got %d", n)
	}
	switch kind {
	case AWGN, BSC:
	default:
		return nil, configErrorf("unknown channel kind %v", kind)
	}
	seed := baseSeed + int64(workerID)
	return &Channel{
		kind:     kind,
		n:        n,
		rate:     rate,
		rng:      rand.New(rand.NewSource(seed)),
		received: make([]float64, n),
	}, nil
}

// SetParameter replaces the current channel parameter. For AWGN, x is an
// Eb/N0 in dB and sigma is derived as sqrt(1/(2*rate*10^(x/10))). For BSC,
// x is a crossover probability that must lie in [0, 0.5]; values outside
// that range fail with a DomainError and leave the parameter unchanged.
func (ch *Channel) SetParameter(x float64) error {
	switch ch.kind {
	case AWGN:
		linear := math.Pow(10, x/10)
		ch.sigma = math.Sqrt(1.0 / (2.0 * ch.rate * linear))
	case BSC:
		if x < 0 || x > 0.5 {
			return domainErrorf("BSC crossover probability %v out of range [0, 0.5]", x)
		}
		ch.p = x
	}
	return nil
}

// Simulate draws a fresh received vector for the all-zero codeword from
// the channel's current distribution, using the owned PRNG.
func (ch *Channel) Simulate() {
	switch ch.kind {
	case AWGN:
		noise := distuv.Normal{Mu: 0, Sigma: ch.sigma, Src: ch.rng}
		for i := 0; i < ch.n; i++ {
			ch.received[i] = 1.0 + noise.Rand()
		}
	case BSC:
		flip := distuv.Bernoulli{P: ch.p, Src: ch.rng}
		for i := 0; i < ch.n; i++ {
			ch.received[i] = flip.Rand()
		}
	}
}

// ComputeLLRs writes the log-likelihood ratio of each coded bit, derived
// from the last Simulate() call, into dst. len(dst) must equal N().
func (ch *Channel) ComputeLLRs(dst []float64) {
	switch ch.kind {
	case AWGN:
		scale := 2.0 / (ch.sigma * ch.sigma)
		for i := 0; i < ch.n; i++ {
			dst[i] = scale * ch.received[i]
		}
	case BSC:
		// p==0 would make log((1-p)/p) diverge; treat it as a
		// saturatingly confident channel instead of emitting +Inf,
		// which would poison the first BP iteration with NaN on
		// subtraction.
		p := ch.p
		if p <= 0 {
			p = 1e-12
		}
		llrMag := math.Log((1 - p) / p)
		for i := 0; i < ch.n; i++ {
			dst[i] = llrMag * (1 - 2*ch.received[i])
		}
	}
}

// N returns the length of the vectors this channel produces.
func (ch *Channel) N() int { return ch.n }

// Kind returns the channel model in use.
func (ch *Channel) Kind() ChannelKind { return ch.kind }
