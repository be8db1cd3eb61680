package rx

// Ranked is a channel together with its smoothed busy score.
type Ranked struct {
	Channel int
	Score   float64
}

// busier defines the ranking order: higher score first, on equal scores the lower channel number first.
func busier(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Channel < b.Channel
}

// GlobalActivity is the highest smoothed score of all channels with data, 0 if no channel has data yet.
func GlobalActivity(views []ChannelView) float64 {
	var result float64
	for _, v := range views {
		if !v.HasData {
			continue
		}
		if v.Smoothed > result {
			result = v.Smoothed
		}
	}
	return result
}

// TopChannels returns up to k channels with data, ordered from the busiest to the quietest.
// Channels without data are left out.
func TopChannels(views []ChannelView, k int) []Ranked {
	if k <= 0 {
		return nil
	}
	result := make([]Ranked, 0, k)
	for _, v := range views {
		if !v.HasData {
			continue
		}
		candidate := Ranked{Channel: v.Channel, Score: v.Smoothed}

		pos := len(result)
		for pos > 0 && busier(candidate, result[pos-1]) {
			pos--
		}
		if pos >= k {
			continue
		}
		if len(result) < k {
			result = append(result, Ranked{})
		}
		copy(result[pos+1:], result[pos:len(result)-1])
		result[pos] = candidate
	}
	return result
}

// QuietestChannel returns the channel with data that has the lowest smoothed score.
// On equal scores the lower channel number wins.
func QuietestChannel(views []ChannelView) (Ranked, bool) {
	var result Ranked
	found := false
	for _, v := range views {
		if !v.HasData {
			continue
		}
		candidate := Ranked{Channel: v.Channel, Score: v.Smoothed}
		if !found || candidate.Score < result.Score || (candidate.Score == result.Score && candidate.Channel < result.Channel) {
			result = candidate
			found = true
		}
	}
	return result, found
}
