package services

import (
	"sort"

	"game-match-system/models"
)

// rankRoundRobin orders participants by wins, then score differential, then
// the tie-break cascade:
//
//  1. score differential in regular matches among the tied players only
//  2. golden-game wins among them
//  3. a golden game for every tied pair that has not played one yet
//  4. once every pair has played, golden score differential, then
//     registration order
//
// golden lists the pairs still owed a golden game; while it is non-empty the
// order of those players is provisional. participants must be in
// registration order.
func rankRoundRobin(participants []models.TournamentParticipant, matches []models.Match) (ordered []models.TournamentParticipant, golden []Pair) {
	seed := seedIndex(participants)
	ordered = append([]models.TournamentParticipant(nil), participants...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.ScoreDiff > b.ScoreDiff
	})

	for start := 0; start < len(ordered); {
		end := start + 1
		for end < len(ordered) &&
			ordered[end].Wins == ordered[start].Wins &&
			ordered[end].ScoreDiff == ordered[start].ScoreDiff {
			end++
		}
		if end-start > 1 {
			golden = append(golden, breakTie(ordered[start:end], matches, seed)...)
		}
		start = end
	}
	return ordered, golden
}

// breakTie reorders a tied group in place and returns owed golden games.
func breakTie(group []models.TournamentParticipant, matches []models.Match, seed map[string]int) []Pair {
	h2h := scoreDiffAmong(group, matches, false)
	sortGroup(group, func(a, b string) bool { return h2h[a] > h2h[b] }, seed)

	var owed []Pair
	for _, sub := range splitBy(group, func(id string) int { return h2h[id] }) {
		if len(sub) < 2 {
			continue
		}
		goldenWins := winsAmong(sub, matches)
		sortGroup(sub, func(a, b string) bool { return goldenWins[a] > goldenWins[b] }, seed)

		for _, still := range splitBy(sub, func(id string) int { return goldenWins[id] }) {
			if len(still) < 2 {
				continue
			}
			missing := unplayedGoldenPairs(still, matches)
			if len(missing) > 0 {
				sortGroup(still, func(a, b string) bool { return false }, seed)
				owed = append(owed, missing...)
				continue
			}
			goldenDiff := scoreDiffAmong(still, matches, true)
			sortGroup(still, func(a, b string) bool { return goldenDiff[a] > goldenDiff[b] }, seed)
		}
	}
	return owed
}

// sortGroup sorts by better, falling back to registration order.
func sortGroup(group []models.TournamentParticipant, better func(a, b string) bool, seed map[string]int) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i].UserID, group[j].UserID
		if better(a, b) {
			return true
		}
		if better(b, a) {
			return false
		}
		return seed[a] < seed[b]
	})
}

// splitBy cuts an already sorted group into runs with equal keys.
// The runs share group's backing array.
func splitBy(group []models.TournamentParticipant, key func(id string) int) [][]models.TournamentParticipant {
	var runs [][]models.TournamentParticipant
	for start := 0; start < len(group); {
		end := start + 1
		for end < len(group) && key(group[end].UserID) == key(group[start].UserID) {
			end++
		}
		runs = append(runs, group[start:end])
		start = end
	}
	return runs
}

func memberSet(group []models.TournamentParticipant) map[string]bool {
	set := make(map[string]bool, len(group))
	for _, p := range group {
		set[p.UserID] = true
	}
	return set
}

// scoreDiffAmong sums own-minus-opponent score over completed matches played
// between members of group, either regular or golden.
func scoreDiffAmong(group []models.TournamentParticipant, matches []models.Match, golden bool) map[string]int {
	in := memberSet(group)
	diff := make(map[string]int, len(group))
	for i := range matches {
		m := &matches[i]
		if m.IsGoldenGame != golden || m.Status != models.MatchStatusCompleted {
			continue
		}
		if !in[m.Player1ID] || !in[m.Player2ID] {
			continue
		}
		p1, p2 := m.Scores(m.Player1ID)
		diff[m.Player1ID] += p1 - p2
		diff[m.Player2ID] += p2 - p1
	}
	return diff
}

// winsAmong counts golden-game wins between members of group.
func winsAmong(group []models.TournamentParticipant, matches []models.Match) map[string]int {
	in := memberSet(group)
	wins := make(map[string]int, len(group))
	for _, m := range matches {
		if !m.IsGoldenGame || m.WinnerID == nil {
			continue
		}
		if in[m.Player1ID] && in[m.Player2ID] {
			wins[*m.WinnerID]++
		}
	}
	return wins
}

func unplayedGoldenPairs(group []models.TournamentParticipant, matches []models.Match) []Pair {
	played := make(map[[2]string]bool)
	for _, m := range matches {
		if m.IsGoldenGame {
			played[[2]string{m.Player1ID, m.Player2ID}] = true
			played[[2]string{m.Player2ID, m.Player1ID}] = true
		}
	}
	var missing []Pair
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i].UserID, group[j].UserID
			if !played[[2]string{a, b}] {
				missing = append(missing, Pair{Player1ID: a, Player2ID: b})
			}
		}
	}
	return missing
}

// rankSingleElimination orders by how far each player got, then wins,
// score differential and registration order.
func rankSingleElimination(participants []models.TournamentParticipant, st eliminationState) []models.TournamentParticipant {
	seed := seedIndex(participants)
	out := append([]models.TournamentParticipant(nil), participants...)
	reach := func(id string) int {
		if r, ok := st.eliminated[id]; ok {
			return r
		}
		return st.rounds + 1
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := reach(a.UserID), reach(b.UserID); ra != rb {
			return ra > rb
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.ScoreDiff != b.ScoreDiff {
			return a.ScoreDiff > b.ScoreDiff
		}
		return seed[a.UserID] < seed[b.UserID]
	})
	return out
}

func toStandings(ordered []models.TournamentParticipant, eliminated map[string]int) []models.Standing {
	out := make([]models.Standing, len(ordered))
	for i, p := range ordered {
		out[i] = models.Standing{
			Rank:      i + 1,
			UserID:    p.UserID,
			Username:  p.Username,
			Wins:      p.Wins,
			Losses:    p.Losses,
			ScoreDiff: p.ScoreDiff,
		}
		if r, ok := eliminated[p.UserID]; ok {
			out[i].EliminatedInRound = &r
		}
	}
	return out
}

func seedIndex(participants []models.TournamentParticipant) map[string]int {
	seed := make(map[string]int, len(participants))
	for i, p := range participants {
		seed[p.UserID] = i
	}
	return seed
}

func participantIDs(participants []models.TournamentParticipant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	return ids
}
