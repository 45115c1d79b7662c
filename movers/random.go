package movers

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/slick/geo"
)

// DefaultDiffusionFactor multiplies the diffusion coefficient for
// uncertainty elements.
const DefaultDiffusionFactor = 2.0

const randomSalt = 0x5eed

// RandomMover spreads elements by horizontal turbulent diffusion: each
// element takes an independent random step sized so the ensemble
// variance grows at the configured diffusion rate.
type RandomMover struct {
	Base

	// Diffusivity is the horizontal diffusion coefficient, m²/s.
	Diffusivity float64

	// UncertaintyFactor scales Diffusivity for uncertainty elements.
	UncertaintyFactor float64

	stepMag   float64
	uncertain bool
}

func NewRandomMover(name string, diffusivity float64) *RandomMover {
	return &RandomMover{
		Base:              NewBase(name),
		Diffusivity:       diffusivity,
		UncertaintyFactor: DefaultDiffusionFactor,
	}
}

func (r *RandomMover) Kind() Kind { return KindRandom }

func (r *RandomMover) PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error {
	if r.Diffusivity < 0 {
		return fmt.Errorf("%w: diffusivity=%v", ErrUncertaintyParams, r.Diffusivity)
	}
	if uncertain && r.UncertaintyFactor <= 0 {
		return fmt.Errorf("%w: diffusion uncertainty factor=%v", ErrUncertaintyParams, r.UncertaintyFactor)
	}
	if err := r.Base.PrepareForModelStep(modelTime, step, uncertain, setSizes); err != nil {
		return err
	}
	// A uniform step of half-width sqrt(6 D dt) has variance 2 D dt,
	// the diffusive spread for one step.
	r.stepMag = math.Sqrt(6 * r.Diffusivity * step.Seconds())
	r.uncertain = uncertain && r.uncertaintyWindowOpen(modelTime)
	return nil
}

// GetMove takes one random horizontal step. The draw is keyed by the
// element identity and the step time, so identical runs diffuse
// identically regardless of iteration order.
func (r *RandomMover) GetMove(modelTime time.Time, step time.Duration, setIndex, elemIndex int, elem Element, elemType ElementType) geo.WorldPoint3D {
	if !r.Active() || r.stepMag == 0 {
		return elem.Position
	}
	mag := r.stepMag
	if elemType == UncertaintyElement && r.uncertain {
		mag *= math.Sqrt(r.UncertaintyFactor)
	}
	u := distuv.Uniform{
		Min: -mag,
		Max: mag,
		Src: ElementSource(r.Run().Seed, mixKeys(randomSalt, hashName(r.Name())), setIndex, elemIndex, modelTime),
	}
	return geo.DisplaceMeters(elem.Position, u.Rand(), u.Rand())
}
