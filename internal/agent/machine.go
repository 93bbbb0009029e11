package agent

// Transition returns the phase that follows p given state s. It is pure:
// every edge is unconditional except the one out of PhaseEvaluating, which
// loops back only while s.ShouldIterate holds and the iteration cap has not
// been reached. PhaseDone is absorbing.
func Transition(p Phase, s State) Phase {
	switch p {
	case PhaseRephrasing:
		return PhaseEmbedding
	case PhaseEmbedding:
		return PhaseRetrieving
	case PhaseRetrieving:
		return PhaseGenerating
	case PhaseGenerating:
		return PhaseEvaluating
	case PhaseEvaluating:
		if s.ShouldIterate && s.Iterations < s.MaxIterations {
			return PhaseRephrasing
		}
		return PhaseDone
	default:
		return PhaseDone
	}
}

// Advance is the full transition of the loop: it folds the step's update u
// into s and returns the next phase together with the new state. s itself
// is not modified.
func Advance(p Phase, s State, u Update) (Phase, State) {
	next := s.Apply(u)
	return Transition(p, next), next
}

// decideIteration is the loop-back rule applied after each evaluation.
func decideIteration(iterations, maxIterations int, confidence, threshold float64, numDocs int) bool {
	return iterations < maxIterations && confidence < threshold && numDocs > 0
}
