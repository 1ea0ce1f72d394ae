package sim

// sessionVolScale returns the volatility multiplier for an hour of day.
// Windows wrap: FromHour > ToHour spans midnight. Hours outside every
// window scale by 1.
func sessionVolScale(windows []SessionWindow, hour int) float64 {
	for _, w := range windows {
		if w.VolScale <= 0 {
			continue
		}
		if w.FromHour <= w.ToHour {
			if hour >= w.FromHour && hour < w.ToHour {
				return w.VolScale
			}
			continue
		}
		if hour >= w.FromHour || hour < w.ToHour {
			return w.VolScale
		}
	}
	return 1.0
}
