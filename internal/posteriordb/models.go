package posteriordb

import (
	"github.com/samcharles93/posterior/internal/constraint"
	"github.com/samcharles93/posterior/internal/dist"
	"github.com/samcharles93/posterior/internal/model"
	"github.com/samcharles93/posterior/internal/tensor"
)

var schoolsData = map[string][]float64{
	"y":     {28, 8, -3, 7, -1, 1, 18, 12},
	"sigma": {15, 10, 16, 11, 9, 11, 10, 18},
}

// Posterior means from the posteriordb reference draws of
// eight_schools-eight_schools_noncentered.
const (
	schoolsMu  = 4.41051833695493
	schoolsTau = 3.60205952364059
)

func schoolsLikelihood(ctx *model.Context) dist.Distribution {
	return dist.Normal{Loc: ctx.MustGet("theta"), Scale: ctx.MustGet("sigma")}
}

var eightSchoolsNoncentered = &Posterior{
	Name:        "eight-schools",
	Description: "Eight schools, non-centered hierarchical normal",
	References:  []Reference{meanRef("mu", schoolsMu), meanRef("tau", schoolsTau)},
	build: func() (*model.Model, error) {
		return model.New(
			model.Param("mu", dist.NewNormal(0, 5)),
			model.Param("tau", dist.NewHalfCauchy(5), model.WithConstraint(constraint.Positive())),
			model.Param("thetaRaw", dist.NewNormal(0, 1), model.WithShape("J")),
			model.Derived("theta", func(ctx *model.Context) *tensor.Tensor {
				offset := ctx.Own(tensor.Mul(ctx.MustGet("tau"), ctx.MustGet("thetaRaw")))
				return tensor.Add(ctx.MustGet("mu"), offset)
			}, "mu", "tau", "thetaRaw"),
			model.Data("sigma", model.WithShape("J")),
			model.Observed("y", schoolsLikelihood),
		)
	},
	data: schoolsData,
}

var eightSchoolsCentered = &Posterior{
	Name:        "eight-schools-centered",
	Description: "Eight schools, centered hierarchical normal",
	References:  []Reference{meanRef("mu", schoolsMu), meanRef("tau", schoolsTau)},
	build: func() (*model.Model, error) {
		return model.New(
			model.Param("mu", dist.NewNormal(0, 5)),
			model.Param("tau", dist.NewHalfCauchy(5), model.WithConstraint(constraint.Positive())),
			model.PriorFrom("theta", func(ctx *model.Context) dist.Distribution {
				return dist.Normal{Loc: ctx.MustGet("mu"), Scale: ctx.MustGet("tau")}
			}, model.WithShape("J")),
			model.Data("sigma", model.WithShape("J")),
			model.Observed("y", schoolsLikelihood),
		)
	},
	data: schoolsData,
}

var kidscore = &Posterior{
	Name:        "kidscore",
	Description: "Linear regression of kid test scores on standardized mom IQ",
	References: []Reference{
		rangeRef("alpha", 50, 130),
		rangeRef("beta", -5, 25),
		rangeRef("sigma", 0, 20),
	},
	build: func() (*model.Model, error) {
		return model.New(
			model.Param("alpha", dist.NewNormal(0, 100)),
			model.Param("beta", dist.NewNormal(0, 10)),
			model.Param("sigma", dist.NewHalfNormal(10), model.WithConstraint(constraint.Positive())),
			model.Data("x", model.WithShape("N")),
			model.Derived("mu", func(ctx *model.Context) *tensor.Tensor {
				slope := ctx.Own(tensor.Mul(ctx.MustGet("beta"), ctx.MustGet("x")))
				return tensor.Add(ctx.MustGet("alpha"), slope)
			}, "alpha", "beta", "x"),
			model.Observed("y", func(ctx *model.Context) dist.Distribution {
				return dist.Normal{Loc: ctx.MustGet("mu"), Scale: ctx.MustGet("sigma")}
			}),
		)
	},
	data: map[string][]float64{
		"x": {-1.5, -1.2, -0.8, -0.5, -0.3, -0.1, 0.1, 0.3, 0.5, 0.7,
			0.9, 1.0, 1.2, 1.3, 1.5, 1.7, 1.9, 2.0, 2.2, 2.5},
		"y": {78, 82, 85, 88, 90, 92, 94, 96, 98, 100,
			102, 104, 106, 108, 110, 112, 114, 116, 118, 122},
	},
	initial: map[string]float64{"alpha": 100},
}

var wells = &Posterior{
	Name:        "wells",
	Description: "Logistic regression of well switching on standardized distance",
	References:  []Reference{rangeRef("beta", 0, 10)},
	build: func() (*model.Model, error) {
		return model.New(
			model.Param("alpha", dist.NewNormal(0, 5)),
			model.Param("beta", dist.NewNormal(0, 2.5)),
			model.Data("x", model.WithShape("N")),
			model.Observed("y", func(ctx *model.Context) dist.Distribution {
				slope := ctx.Own(tensor.Mul(ctx.MustGet("beta"), ctx.MustGet("x")))
				return dist.BernoulliLogit{Logit: ctx.Own(tensor.Add(ctx.MustGet("alpha"), slope))}
			}),
		)
	},
	data: map[string][]float64{
		"x": {-2.0, -1.8, -1.5, -1.3, -1.0, -0.8, -0.5, -0.3, -0.1, 0.0,
			0.1, 0.3, 0.5, 0.7, 0.9, 1.0, 1.2, 1.4, 1.6, 1.8,
			2.0, 2.2, 2.4, 2.6, 2.8, 3.0, 3.2, 3.4, 3.6, 3.8},
		"y": {0, 0, 0, 0, 0, 0, 1, 0, 1, 0,
			1, 1, 0, 1, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	},
}
