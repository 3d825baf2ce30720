package thread

import (
	"cmp"
	"slices"
)

// roleRank puts user messages ahead of every other role when two messages
// share a normalized timestamp.
func roleRank(r Role) int {
	if r == RoleUser {
		return 0
	}
	return 1
}

// Compare orders messages by normalized timestamp, then user before non-user.
func Compare(a, b Message) int {
	if c := cmp.Compare(Normalize(a), Normalize(b)); c != 0 {
		return c
	}
	return cmp.Compare(roleRank(a.Role), roleRank(b.Role))
}

// Sort returns a new, stably ordered slice. The input is not modified, and
// sorting an already sorted slice returns it in the same order.
func Sort(msgs []Message) []Message {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, Compare)
	return out
}
