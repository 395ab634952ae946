package track

import (
	"gonum.org/v1/gonum/mat"

	"github.com/your-org/vtrack/internal/models"
)

// Constant-velocity Kalman filter over bounding boxes.
// State vector: [cx, cy, w, h, vcx, vcy, vw, vh].
const (
	stateDim = 8
	measDim  = 4

	// Noise parameters in pixel space.
	initialPosVar   = 10.0
	initialVelVar   = 1000.0
	processNoisePos = 1.0
	processNoiseVel = 0.01
	measNoise       = 1.0

	// minExtent keeps estimated boxes from collapsing to zero area.
	minExtent = 1.0
)

type kalmanFilter struct {
	x *mat.VecDense // state
	p *mat.Dense    // covariance
}

// newKalmanFilter initialises a filter from the first observation of a box,
// with zero velocity and high velocity uncertainty.
func newKalmanFilter(b models.BBox) *kalmanFilter {
	cx, cy := b.Center()

	x := mat.NewVecDense(stateDim, nil)
	x.SetVec(0, cx)
	x.SetVec(1, cy)
	x.SetVec(2, b.Width())
	x.SetVec(3, b.Height())

	p := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		p.Set(i, i, initialPosVar)
	}
	for i := measDim; i < stateDim; i++ {
		p.Set(i, i, initialVelVar)
	}

	return &kalmanFilter{x: x, p: p}
}

// transition builds the state transition matrix F for an elapsed time dt.
func transition(dt float64) *mat.Dense {
	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < measDim; i++ {
		f.Set(i, i+measDim, dt)
	}
	return f
}

// measurement builds the observation matrix H extracting [cx, cy, w, h].
func measurement() *mat.Dense {
	h := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		h.Set(i, i, 1)
	}
	return h
}

// predict advances the state estimate by dt seconds using the constant
// velocity model: x' = F x, P' = F P Fᵀ + Q.
func (k *kalmanFilter) predict(dt float64) {
	if dt <= 0 {
		return
	}

	f := transition(dt)

	var x mat.VecDense
	x.MulVec(f, k.x)
	k.x.CopyVec(&x)

	var fp, fpft mat.Dense
	fp.Mul(f, k.p)
	fpft.Mul(&fp, f.T())

	for i := 0; i < measDim; i++ {
		fpft.Set(i, i, fpft.At(i, i)+processNoisePos)
	}
	for i := measDim; i < stateDim; i++ {
		fpft.Set(i, i, fpft.At(i, i)+processNoiseVel)
	}

	k.p.Copy(&fpft)
}

// correct folds an observed box into the estimate:
// K = P Hᵀ S⁻¹, x' = x + K y, P' = (I - K H) P.
// A singular innovation covariance skips the update rather than corrupting
// the state.
func (k *kalmanFilter) correct(b models.BBox) {
	h := measurement()

	cx, cy := b.Center()
	z := mat.NewVecDense(measDim, []float64{cx, cy, b.Width(), b.Height()})

	// Innovation y = z - H x.
	var hx mat.VecDense
	hx.MulVec(h, k.x)
	var y mat.VecDense
	y.SubVec(z, &hx)

	// Innovation covariance S = H P Hᵀ + R.
	var hp, s mat.Dense
	hp.Mul(h, k.p)
	s.Mul(&hp, h.T())
	for i := 0; i < measDim; i++ {
		s.Set(i, i, s.At(i, i)+measNoise)
	}

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	// Kalman gain K = P Hᵀ S⁻¹.
	var pht, gain mat.Dense
	pht.Mul(k.p, h.T())
	gain.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&gain, &y)
	k.x.AddVec(k.x, &ky)

	// P' = (I - K H) P.
	var kh mat.Dense
	kh.Mul(&gain, h)
	ikh := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)

	var newP mat.Dense
	newP.Mul(ikh, k.p)
	k.p.Copy(&newP)
}

// bbox returns the current box estimate with extents floored to stay valid.
func (k *kalmanFilter) bbox() models.BBox {
	cx := k.x.AtVec(0)
	cy := k.x.AtVec(1)
	w := k.x.AtVec(2)
	h := k.x.AtVec(3)
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	return models.BBox{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}
