package model

// MaxCells is the fixed size of the per-pack cell voltage array. Slots at or
// beyond CellCount stay zero regardless of what the wheel sends.
const MaxCells = 36

// BmsSnapshot carries one battery pack's self-reported state. Cell voltages
// arrive in fixed-size pages and are stored in millivolts; statistics are
// recomputed only when a full page lands, via RecalcCellStats.
type BmsSnapshot struct {
	Serial          string
	Version         string
	RatedCapacity   int // mAh
	ActualCapacity  int // mAh
	FullCycles      int
	ChargeCycles    int
	ManufactureDate string

	CellCount int
	Cells     [MaxCells]int // mV

	MinCell      int // mV
	MaxCell      int // mV
	AvgCell      int // mV
	MinCellIndex int
	MaxCellIndex int

	Temperature  int // hundredths of degC
	Temperature2 int
	Humidity     int // percent
	Health       int // state of health, percent
}

// SetCell stores one cell voltage, ignoring writes outside the fixed array
// or past the pack's declared cell count.
func (b *BmsSnapshot) SetCell(index, millivolts int) bool {
	if index < 0 || index >= MaxCells {
		return false
	}
	if b.CellCount > 0 && index >= b.CellCount {
		return false
	}
	b.Cells[index] = millivolts
	return true
}

// RecalcCellStats recomputes min/max/avg over the declared cell count.
// Called after a complete cell-voltage page, not per cell.
func (b *BmsSnapshot) RecalcCellStats() {
	n := b.CellCount
	if n <= 0 || n > MaxCells {
		n = MaxCells
	}
	b.MinCell, b.MaxCell, b.AvgCell = 0, 0, 0
	b.MinCellIndex, b.MaxCellIndex = 0, 0
	sum, counted := 0, 0
	for i := 0; i < n; i++ {
		v := b.Cells[i]
		if v == 0 {
			continue
		}
		if counted == 0 || v < b.MinCell {
			b.MinCell = v
			b.MinCellIndex = i
		}
		if counted == 0 || v > b.MaxCell {
			b.MaxCell = v
			b.MaxCellIndex = i
		}
		sum += v
		counted++
	}
	if counted > 0 {
		b.AvgCell = sum / counted
	}
}
