package passive

// SwappedPair is the result of comparing two lineups that differ by
// exactly one athlete per side.
type SwappedPair struct {
	// Athlete1ID is the athlete unique to the first lineup.
	Athlete1ID string
	// Athlete2ID is the athlete unique to the second lineup.
	Athlete2ID string
}

// FindSwappedAthletes compares two lineups and returns the single athlete
// unique to each side. It is a pure set-difference computation: element
// order within the lineups does not matter.
//
// Returns ok=false when the lineups are identical, disjoint, or differ by
// more than one athlete per side. In those cases no swap attribution is
// possible and the caller must not guess.
func FindSwappedAthletes(lineupA, lineupB []string) (pair SwappedPair, ok bool) {
	setA := make(map[string]struct{}, len(lineupA))
	for _, id := range lineupA {
		setA[id] = struct{}{}
	}
	setB := make(map[string]struct{}, len(lineupB))
	for _, id := range lineupB {
		setB[id] = struct{}{}
	}

	var onlyA, onlyB []string
	for id := range setA {
		if _, shared := setB[id]; !shared {
			onlyA = append(onlyA, id)
		}
	}
	for id := range setB {
		if _, shared := setA[id]; !shared {
			onlyB = append(onlyB, id)
		}
	}

	if len(onlyA) != 1 || len(onlyB) != 1 {
		return SwappedPair{}, false
	}
	return SwappedPair{Athlete1ID: onlyA[0], Athlete2ID: onlyB[0]}, true
}
