package planner

// Converge repeatedly applies step to the state until the distance
// between successive states falls below tolerance or maxIterations is
// exhausted. It returns the final state, the number of iterations used,
// and whether convergence was reached; a non-convergent loop is not an
// error, the last state is the best effort.
func Converge[S any](
	initial S,
	step func(S) (S, error),
	distance func(prev, next S) float64,
	tolerance float64,
	maxIterations int,
) (S, int, bool, error) {
	state := initial
	for i := 1; i <= maxIterations; i++ {
		next, err := step(state)
		if err != nil {
			return state, i, false, err
		}
		if distance(state, next) < tolerance {
			return next, i, true, nil
		}
		state = next
	}
	return state, maxIterations, false, nil
}
