package dispatch

import (
	"math/rand"

	"github.com/citycab/dispatch/core/model"
)

// Selector chooses one driver among the available candidates. Pick is only
// called with a non-empty slice and always under the manager's lock.
type Selector interface {
	Pick(available []model.Driver) model.Driver
}

// RandomSelector picks uniformly at random. Selection makes no fairness
// guarantee across drivers over many requests; that is a deliberate
// policy choice, kept explicit here.
type RandomSelector struct {
	rng *rand.Rand
}

// NewRandomSelector creates a selector with its own RNG. A fixed seed makes
// selection reproducible.
func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

// Pick implements Selector.
func (s *RandomSelector) Pick(available []model.Driver) model.Driver {
	return available[s.rng.Intn(len(available))]
}
