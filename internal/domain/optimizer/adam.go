package optimizer

import "math"

// Adam is the Adam update rule with bias correction over a fixed-length
// vector. Entries whose gradient is exactly zero are left untouched, which
// is how frozen parameters stay put.
//
//	m = b1*m + (1-b1)*g
//	v = b2*v + (1-b2)*g^2
//	w = w - lr * m_hat / (sqrt(v_hat) + eps)
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	m, v  []float64
	step  int
}

// NewAdam creates an Adam optimizer for n parameters with b1=0.9,
// b2=0.999 and eps=1e-8.
func NewAdam(n int, lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

// Update applies one step to w in place.
func (a *Adam) Update(w, grads []float64) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, g := range grads {
		if g == 0 {
			continue
		}
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		w[i] -= a.lr * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + a.eps)
	}
}

// SetLR replaces the learning rate.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// CosineAnnealing decays the learning rate from lrMax towards zero over
// tMax steps: lr_t = 0.5 * lrMax * (1 + cos(pi * t / tMax)).
type CosineAnnealing struct {
	lrMax float64
	tMax  int
	t     int
}

// NewCosineAnnealing creates a schedule. A non-positive tMax keeps the
// rate constant.
func NewCosineAnnealing(lrMax float64, tMax int) *CosineAnnealing {
	return &CosineAnnealing{lrMax: lrMax, tMax: tMax}
}

// LR returns the current learning rate.
func (ca *CosineAnnealing) LR() float64 {
	if ca.tMax <= 0 {
		return ca.lrMax
	}
	return 0.5 * ca.lrMax * (1 + math.Cos(math.Pi*float64(ca.t)/float64(ca.tMax)))
}

// Step advances the schedule and returns the new rate.
func (ca *CosineAnnealing) Step() float64 {
	ca.t++
	return ca.LR()
}
