package dist

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samcharles93/posterior/internal/tensor"
)

// Bernoulli puts mass P on 1 and 1-P on 0.
type Bernoulli struct {
	P *tensor.Tensor
}

// NewBernoulli returns a Bernoulli with a constant probability.
func NewBernoulli(p float64) Bernoulli {
	return Bernoulli{P: tensor.Const(p)}
}

func (d Bernoulli) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	logP := s.T(tensor.Log(d.P))
	log1mP := s.T(tensor.Log1p(s.T(tensor.Neg(d.P))))
	hit := s.T(tensor.Mul(x, logP))
	miss := s.T(tensor.Mul(s.T(tensor.RSub(1, x)), log1mP))
	return tensor.Add(hit, miss)
}

func (d Bernoulli) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.P}, func(src rand.Source, p []float64) float64 {
		return distuv.Bernoulli{P: p[0], Src: src}.Rand()
	})
}

func (d Bernoulli) Shape() []int     { return d.P.Shape() }
func (d Bernoulli) Support() Support { return Support{Kind: Binary} }

// BernoulliLogit is a Bernoulli parameterised by the log-odds, which keeps
// logistic regression likelihoods stable for large linear predictors.
type BernoulliLogit struct {
	Logit *tensor.Tensor
}

func (d BernoulliLogit) LogProb(x *tensor.Tensor) *tensor.Tensor {
	var s tensor.Scope
	defer s.Close()
	term := s.T(tensor.Mul(x, d.Logit))
	return tensor.Sub(term, s.T(tensor.Softplus(d.Logit)))
}

func (d BernoulliLogit) Sample(key tensor.Key, shape ...int) *tensor.Tensor {
	return sampleEach(key, shape, []*tensor.Tensor{d.Logit}, func(src rand.Source, p []float64) float64 {
		prob := 1 / (1 + math.Exp(-p[0]))
		return distuv.Bernoulli{P: prob, Src: src}.Rand()
	})
}

func (d BernoulliLogit) Shape() []int     { return d.Logit.Shape() }
func (d BernoulliLogit) Support() Support { return Support{Kind: Binary} }
