package protocol

// VoltageClass is a pack's series cell count. Six classes cover the fleet.
type VoltageClass int

const (
	Class67  VoltageClass = 16 // 67.2V full
	Class84  VoltageClass = 20 // 84.0V full
	Class100 VoltageClass = 24 // 100.8V full
	Class126 VoltageClass = 30 // 126.0V full
	Class151 VoltageClass = 36 // 151.2V full
	Class168 VoltageClass = 40 // 168.0V full
)

// Cells returns the series cell count for the class.
func (c VoltageClass) Cells() int { return int(c) }

// betterKnots is the piecewise "better percents" curve as (per-cell voltage
// in hundredths, percent) pairs. Legacy is a straight line 3.30V..4.20V.
var betterKnots = [...][2]int{
	{330, 0},
	{350, 10},
	{390, 70},
	{415, 95},
	{420, 100},
}

// BatteryPercent maps pack voltage (hundredths of a volt) to 0..100 for the
// given voltage class. Out-of-range voltages clamp to 0/100.
func BatteryPercent(voltage int, class VoltageClass, better bool) int {
	cells := class.Cells()
	if cells <= 0 || voltage <= 0 {
		return 0
	}
	perCell := voltage / cells
	if !better {
		return clampPercent((perCell - 330) * 100 / 90)
	}
	if perCell <= betterKnots[0][0] {
		return 0
	}
	last := betterKnots[len(betterKnots)-1]
	if perCell >= last[0] {
		return 100
	}
	for i := 1; i < len(betterKnots); i++ {
		v0, p0 := betterKnots[i-1][0], betterKnots[i-1][1]
		v1, p1 := betterKnots[i][0], betterKnots[i][1]
		if perCell <= v1 {
			return p0 + (perCell-v0)*(p1-p0)/(v1-v0)
		}
	}
	return 100
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
