// Package liveness runs the six-challenge liveness protocol over per-tick face-mesh samples
package liveness

import (
	"fmt"
	"math/bits"
)

// ChallengeID addresses a challenge by its position in the catalog
type ChallengeID int

// Catalog order is fixed; detectors refer to challenges by these ids
const (
	Blink ChallengeID = iota
	TurnLeft
	TurnRight
	Smile
	NodYes
	NodNo

	NumChallenges = 6
)

// ChallengeType is the stable machine name of a challenge
type ChallengeType string

const (
	ChallengeBlink     ChallengeType = "blink"
	ChallengeTurnLeft  ChallengeType = "turn_left"
	ChallengeTurnRight ChallengeType = "turn_right"
	ChallengeSmile     ChallengeType = "smile"
	ChallengeNodYes    ChallengeType = "nod_yes"
	ChallengeNodNo     ChallengeType = "nod_no"
)

// Challenge represents a single catalog entry
type Challenge struct {
	ID    ChallengeID   `json:"id" yaml:"id"`
	Type  ChallengeType `json:"type" yaml:"type"`
	Label string        `json:"label" yaml:"label"`
}

var catalog = [NumChallenges]Challenge{
	{ID: Blink, Type: ChallengeBlink, Label: "Blink your eyes"},
	{ID: TurnLeft, Type: ChallengeTurnLeft, Label: "Turn your head left"},
	{ID: TurnRight, Type: ChallengeTurnRight, Label: "Turn your head right"},
	{ID: Smile, Type: ChallengeSmile, Label: "Smile"},
	{ID: NodYes, Type: ChallengeNodYes, Label: "Nod your head Yes"},
	{ID: NodNo, Type: ChallengeNodNo, Label: "Nod your head No"},
}

func init() {
	for i, c := range catalog {
		if int(c.ID) != i {
			panic(fmt.Sprintf("liveness: catalog entry %d carries id %d", i, c.ID))
		}
	}
}

// Catalog returns a copy of the ordered challenge list
func Catalog() []Challenge {
	out := make([]Challenge, NumChallenges)
	copy(out, catalog[:])
	return out
}

// Label returns the user-facing instruction for id
func Label(id ChallengeID) string {
	mustValid(id)
	return catalog[id].Label
}

// Type returns the machine name for id
func (id ChallengeID) Type() ChallengeType {
	mustValid(id)
	return catalog[id].Type
}

func (id ChallengeID) String() string {
	if id < 0 || id >= NumChallenges {
		return fmt.Sprintf("ChallengeID(%d)", int(id))
	}
	return string(catalog[id].Type)
}

// mustValid panics when id falls outside the catalog. Such an id can only come
// from a programming error, never from camera input.
func mustValid(id ChallengeID) {
	if id < 0 || id >= NumChallenges {
		panic(fmt.Sprintf("liveness: challenge id %d outside catalog [0,%d)", int(id), NumChallenges))
	}
}

// ChallengeSet is a bitset over the catalog
type ChallengeSet uint8

// Has reports whether id is in the set
func (s ChallengeSet) Has(id ChallengeID) bool {
	mustValid(id)
	return s&(1<<uint(id)) != 0
}

// Add inserts id and reports whether it was newly added
func (s *ChallengeSet) Add(id ChallengeID) bool {
	if s.Has(id) {
		return false
	}
	*s |= 1 << uint(id)
	return true
}

// Len returns the number of challenges in the set
func (s ChallengeSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

// Full reports whether every catalog challenge is in the set
func (s ChallengeSet) Full() bool {
	return s.Len() == NumChallenges
}

// IDs lists the members in catalog order
func (s ChallengeSet) IDs() []ChallengeID {
	ids := make([]ChallengeID, 0, s.Len())
	for id := ChallengeID(0); id < NumChallenges; id++ {
		if s.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
