package contextbuf

// removalCutoff is the importance score below which the importance strategy
// considers an entry removable.
const removalCutoff = 5

// summaryKeepChars is how much content the summarize strategy retains.
const summaryKeepChars = 100

// summaryMarker is appended to shrunk content.
const summaryMarker = "... [summarized]"

// Compact frees tokens using the configured strategy. Returns true iff at
// least requiredTokens were freed. An unknown strategy frees nothing.
func (b *Buffer) Compact(requiredTokens int) bool {
	switch b.strategy {
	case StrategyImportance:
		return b.compactByImportance(requiredTokens)
	case StrategySummarize:
		return b.compactBySummarization(requiredTokens)
	case StrategyTruncate:
		return b.compactByTruncation(requiredTokens)
	default:
		return false
	}
}

// compactByImportance removes low-importance entries oldest-first, preserving
// anything in the important set or scoring at or above the cutoff.
func (b *Buffer) compactByImportance(requiredTokens int) bool {
	removable := func(i int, e *Entry) bool {
		_, marked := b.important[i]
		return !marked && e.Importance < removalCutoff
	}
	return b.removeMatching(requiredTokens, removable)
}

// compactByTruncation removes oldest entries first. Only importance-set
// membership protects an entry, not its score.
func (b *Buffer) compactByTruncation(requiredTokens int) bool {
	removable := func(i int, _ *Entry) bool {
		_, marked := b.important[i]
		return !marked
	}
	return b.removeMatching(requiredTokens, removable)
}

// removeMatching collects removable entries oldest-first until their token
// counts cover requiredTokens, then removes them in reverse index order so
// earlier indices stay valid during removal.
func (b *Buffer) removeMatching(requiredTokens int, removable func(int, *Entry) bool) bool {
	var toRemove []int
	freed := 0

	for i, e := range b.entries {
		if !removable(i, e) {
			continue
		}
		toRemove = append(toRemove, i)
		freed += e.Tokens
		if freed >= requiredTokens {
			break
		}
	}

	for j := len(toRemove) - 1; j >= 0; j-- {
		i := toRemove[j]
		b.currentTokens -= b.entries[i].Tokens
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		b.shiftImportantAbove(i)
	}

	return freed >= requiredTokens
}

// shiftImportantAbove renumbers the important set after removing index i.
func (b *Buffer) shiftImportantAbove(i int) {
	updated := make(map[int]struct{}, len(b.important))
	for idx := range b.important {
		if idx > i {
			updated[idx-1] = struct{}{}
		} else {
			updated[idx] = struct{}{}
		}
	}
	b.important = updated
}

// compactBySummarization shrinks the oldest half of entries in place,
// truncating long content to its first summaryKeepChars characters plus a
// marker. Entries are never removed, so indices stay stable.
func (b *Buffer) compactBySummarization(requiredTokens int) bool {
	freed := 0
	half := len(b.entries) / 2

	for i := 0; i < half; i++ {
		if _, marked := b.important[i]; marked {
			continue
		}

		e := b.entries[i]
		runes := []rune(e.Content)
		if len(runes) <= summaryKeepChars {
			continue
		}

		original := e.Tokens
		e.Content = string(runes[:summaryKeepChars]) + summaryMarker
		e.Tokens = EstimateTokens(e.Content)
		delta := original - e.Tokens
		freed += delta
		b.currentTokens -= delta

		if freed >= requiredTokens {
			break
		}
	}

	return freed >= requiredTokens
}
