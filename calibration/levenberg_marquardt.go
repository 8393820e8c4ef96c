package calibration

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereocalib/logging"
)

// SolverSettings is the termination policy of the Levenberg-Marquardt solver.
type SolverSettings struct {
	MaxIterations int     `json:"max_iterations"`
	Epsilon       float64 `json:"epsilon"`
}

// DefaultSolverSettings are used when no settings are given.
var DefaultSolverSettings = SolverSettings{MaxIterations: 100, Epsilon: 1e-10}

const (
	initialDamping = 1e-3
	maxDamping     = 1e16
	// Jacobi-scaled condition number of J^T J above which the solution is not trusted.
	maxConditionNumber = 1e14
	// a solve that ran out of iterations is still accepted if the last step improved the
	// cost by less than this fraction.
	stalledImprovement = 1e-6
)

// leastSquaresProblem is a sum of squared residuals over a flat parameter vector.
// residuals must be safe for concurrent use since the Jacobian is evaluated in parallel.
type leastSquaresProblem struct {
	numResiduals int
	residuals    func(dst, params []float64)
}

type leastSquaresResult struct {
	params     []float64
	cost       float64
	iterations int
	converged  bool
	// normal is J^T J at the solution.
	normal *mat.SymDense
}

// rms is the root mean square residual at the solution.
func (res *leastSquaresResult) rms(numResiduals int) float64 {
	return math.Sqrt(res.cost / float64(numResiduals))
}

func (settings SolverSettings) withDefaults() SolverSettings {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultSolverSettings.MaxIterations
	}
	if settings.Epsilon <= 0 {
		settings.Epsilon = DefaultSolverSettings.Epsilon
	}
	return settings
}

// solveLeastSquares minimizes the problem from initial with Levenberg-Marquardt: Gauss-Newton
// normal equations with the diagonal of J^T J scaled by a damping factor that grows on rejected
// steps and shrinks on accepted ones.
func solveLeastSquares(
	problem leastSquaresProblem,
	initial []float64,
	settings SolverSettings,
	logger logging.Logger,
) (*leastSquaresResult, error) {
	settings = settings.withDefaults()
	n := len(initial)
	m := problem.numResiduals
	if m < n {
		return nil, newError(InsufficientData, "%d residuals can not constrain %d parameters", m, n)
	}

	x := append([]float64(nil), initial...)
	r := make([]float64, m)
	problem.residuals(r, x)
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, newError(ConvergenceFailure, "initial estimate gives non finite residuals")
	}

	jac := mat.NewDense(m, n, nil)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central, Concurrent: true}
	var jtj mat.SymDense
	var grad mat.VecDense
	damped := mat.NewSymDense(n, nil)
	delta := mat.NewVecDense(n, nil)
	candidate := make([]float64, n)
	rCandidate := make([]float64, m)

	lambda := initialDamping
	lastImprovement := math.Inf(1)
	res := &leastSquaresResult{}
	for res.iterations = 0; res.iterations < settings.MaxIterations && !res.converged; res.iterations++ {
		fd.Jacobian(jac, problem.residuals, x, jacSettings)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&grad, math.Inf(1)) < settings.Epsilon*settings.Epsilon {
			res.converged = true
			break
		}

		accepted := false
		for !accepted {
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-9))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				if lambda > maxDamping {
					break
				}
				continue
			}
			if err := chol.SolveVecTo(delta, &grad); err != nil {
				lambda *= 10
				if lambda > maxDamping {
					break
				}
				continue
			}
			for i := range candidate {
				candidate[i] = x[i] - delta.AtVec(i)
			}
			problem.residuals(rCandidate, candidate)
			newCost := floats.Dot(rCandidate, rCandidate)

			if newCost < cost && !math.IsNaN(newCost) {
				accepted = true
				lastImprovement = (cost - newCost) / cost
				stepSmall := mat.Norm(delta, 2) <= settings.Epsilon*(floats.Norm(x, 2)+settings.Epsilon)
				copy(x, candidate)
				copy(r, rCandidate)
				cost = newCost
				lambda = math.Max(lambda/10, 1e-15)
				if lastImprovement < settings.Epsilon || stepSmall || cost < 1e-24*float64(m) {
					res.converged = true
				}
				continue
			}
			lambda *= 10
			if lambda > maxDamping {
				break
			}
		}
		if !accepted {
			// no descent direction left: x is a minimum within numerical precision
			res.converged = true
		}
		logger.Debugw("levenberg-marquardt iteration",
			"iteration", res.iterations, "rms", math.Sqrt(cost/float64(m)), "damping", lambda)
	}

	if !res.converged && lastImprovement < stalledImprovement {
		logger.Warnw("solver hit its iteration limit while stalled, accepting", "iterations", res.iterations)
		res.converged = true
	}
	if !res.converged {
		return nil, newError(ConvergenceFailure, "no convergence after %d iterations (rms %.4g)",
			res.iterations, math.Sqrt(cost/float64(m)))
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, newError(ConvergenceFailure, "solver produced non finite parameters")
		}
	}

	fd.Jacobian(jac, problem.residuals, x, jacSettings)
	jtj.SymOuterK(1, jac.T())
	res.params = x
	res.cost = cost
	res.normal = &jtj
	return res, nil
}

// scaledCondition is the 2-norm condition number of D^-1/2 A D^-1/2 with D = diag(A), which
// is insensitive to the units of the parameters. Only the rows and columns listed in keep are used.
func scaledCondition(a *mat.SymDense, keep []int) float64 {
	n := len(keep)
	scale := make([]float64, n)
	for i, k := range keep {
		d := a.At(k, k)
		if d <= 0 {
			return math.Inf(1)
		}
		scale[i] = 1 / math.Sqrt(d)
	}
	scaled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			scaled.SetSym(i, j, a.At(keep[i], keep[j])*scale[i]*scale[j])
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(scaled, false); !ok {
		return math.Inf(1)
	}
	values := eig.Values(nil)
	lo, hi := values[0], values[len(values)-1]
	if lo <= 0 {
		return math.Inf(1)
	}
	return hi / lo
}

// checkConditioning turns a degenerate solution into a ConvergenceFailure. Every free
// parameter takes part, distortion included, except those skip names.
func checkConditioning(res *leastSquaresResult, what string, skip func(i int) bool) error {
	var keep []int
	for i := range res.params {
		if skip == nil || !skip(i) {
			keep = append(keep, i)
		}
	}
	condition := scaledCondition(res.normal, keep)
	if condition > maxConditionNumber || math.IsNaN(condition) {
		return newError(ConvergenceFailure,
			"%s is ill-conditioned (condition number %.3g); add views with more varied board poses", what, condition)
	}
	return nil
}
