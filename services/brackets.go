package services

import "game-match-system/models"

// Pair is one scheduled pairing of two participants by user id.
type Pair struct {
	Player1ID string
	Player2ID string
}

// roundRobinRounds builds the full schedule with the circle method: the
// first player stays put while the rest rotate. An odd field gets a bye
// slot, so n players play n-1 rounds (even n) or n rounds (odd n).
func roundRobinRounds(ids []string) [][]Pair {
	if len(ids) < 2 {
		return nil
	}
	slots := append([]string(nil), ids...)
	if len(slots)%2 != 0 {
		slots = append(slots, "") // bye
	}
	n := len(slots)

	rounds := make([][]Pair, 0, n-1)
	for r := 0; r < n-1; r++ {
		var round []Pair
		for i := 0; i < n/2; i++ {
			a, b := slots[i], slots[n-1-i]
			if a == "" || b == "" {
				continue
			}
			round = append(round, Pair{Player1ID: a, Player2ID: b})
		}
		rounds = append(rounds, round)

		// rotate everything but the first slot one step clockwise
		last := slots[n-1]
		copy(slots[2:], slots[1:n-1])
		slots[1] = last
	}
	return rounds
}

// eliminationPairs seeds one knockout round: top seed against bottom seed.
// With an odd field the top seed sits the round out.
func eliminationPairs(alive []string) (pairs []Pair, bye string) {
	field := alive
	if len(field)%2 != 0 {
		bye, field = field[0], field[1:]
	}
	n := len(field)
	for i := 0; i < n/2; i++ {
		pairs = append(pairs, Pair{Player1ID: field[i], Player2ID: field[n-1-i]})
	}
	return pairs, bye
}

// missingPairs returns the pairs in expected that have no match in existing,
// in either slot order.
func missingPairs(expected []Pair, existing []models.Match) []Pair {
	have := make(map[[2]string]bool, len(existing)*2)
	for _, m := range existing {
		have[[2]string{m.Player1ID, m.Player2ID}] = true
		have[[2]string{m.Player2ID, m.Player1ID}] = true
	}
	var missing []Pair
	for _, p := range expected {
		if !have[[2]string{p.Player1ID, p.Player2ID}] {
			missing = append(missing, p)
		}
	}
	return missing
}

// regularByRound groups non-golden matches by round.
func regularByRound(matches []models.Match) map[int][]models.Match {
	byRound := make(map[int][]models.Match)
	for _, m := range matches {
		if !m.IsGoldenGame {
			byRound[m.Round] = append(byRound[m.Round], m)
		}
	}
	return byRound
}

// eliminationState is a single-elimination bracket replayed from its matches.
type eliminationState struct {
	alive      []string       // still in, in seed order
	eliminated map[string]int // user id -> round they went out in
	rounds     int            // rounds fully played

	// pending lists pairings of round pendingRound that have no match yet.
	pending      []Pair
	pendingRound int
}

// replayElimination walks the bracket round by round. A player advances by
// winning their match or by holding the bye; a match with no winner
// eliminates both players. The walk stops at the first round that is not
// fully created or not fully played.
func replayElimination(seeds []string, matches []models.Match) eliminationState {
	st := eliminationState{
		alive:      append([]string(nil), seeds...),
		eliminated: make(map[string]int),
	}
	byRound := regularByRound(matches)

	for r := 1; len(st.alive) > 1; r++ {
		pairs, bye := eliminationPairs(st.alive)
		if missing := missingPairs(pairs, byRound[r]); len(missing) > 0 {
			st.pending, st.pendingRound = missing, r
			break
		}

		winners := make(map[string]bool)
		open := false
		for _, m := range byRound[r] {
			if !m.Status.IsTerminal() {
				open = true
			}
			if m.WinnerID != nil {
				winners[*m.WinnerID] = true
			}
		}
		if open {
			break
		}

		next := st.alive[:0:0]
		for _, id := range st.alive {
			if id == bye || winners[id] {
				next = append(next, id)
				continue
			}
			st.eliminated[id] = r
		}
		st.alive = next
		st.rounds = r
	}
	return st
}

// done reports whether the bracket has produced its final result.
func (st eliminationState) done() bool {
	return len(st.alive) <= 1
}
