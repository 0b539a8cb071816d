package voting

import (
	"slices"
	"time"
)

// IsClosed reports whether voting has ended. Groups without a configuration never close.
func IsClosed(config *PollConfig, now time.Time) bool {
	if config == nil {
		return false
	}
	return !NormalizeUTC(now).Before(config.VoteDeadline())
}

// Winners returns every candidate holding the highest tally, ordered by id.
// No votes at all yields no winner rather than an all-way tie.
func Winners(candidates []CandidateID, tally map[CandidateID]int64) []CandidateID {
	seen := make(map[CandidateID]struct{}, len(candidates)+len(tally))
	pool := make([]CandidateID, 0, len(candidates)+len(tally))
	for _, id := range candidates {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}
	for id := range tally {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}

	var maxVotes int64
	for _, id := range pool {
		if votes := tally[id]; votes > maxVotes {
			maxVotes = votes
		}
	}
	if maxVotes == 0 {
		return nil
	}

	winners := make([]CandidateID, 0, 1)
	for _, id := range pool {
		if tally[id] == maxVotes {
			winners = append(winners, id)
		}
	}
	slices.Sort(winners)
	return winners
}
