package domain

var batteryLevels = []struct {
	aboveMillivolts int
	level           string
}{
	{4000, "100%"},
	{3920, "90%"},
	{3860, "80%"},
	{3800, "70%"},
	{3725, "60%"},
	{3650, "50%"},
	{3635, "40%"},
	{3620, "30%"},
	{3550, "20%"},
}

// BatteryLevel maps a battery voltage to the percentage shown in the mint
// info.
func BatteryLevel(millivolts int) string {
	for _, l := range batteryLevels {
		if millivolts > l.aboveMillivolts {
			return l.level
		}
	}
	return "10%"
}
