package model

import "testing"

func TestSetCellBounds(t *testing.T) {
	b := &BmsSnapshot{CellCount: 20}
	if !b.SetCell(0, 4100) {
		t.Fatalf("in-range write rejected")
	}
	if !b.SetCell(19, 3900) {
		t.Fatalf("last declared cell rejected")
	}
	if b.SetCell(20, 3900) {
		t.Fatalf("write past declared cell count accepted")
	}
	if b.SetCell(-1, 3900) || b.SetCell(MaxCells, 3900) {
		t.Fatalf("out-of-array write accepted")
	}
	for i := 20; i < MaxCells; i++ {
		if b.Cells[i] != 0 {
			t.Fatalf("cell %d nonzero past declared count", i)
		}
	}
}

func TestRecalcCellStatsMatchesDirectComputation(t *testing.T) {
	b := &BmsSnapshot{CellCount: 14}
	volts := []int{4012, 4008, 4015, 4001, 4011, 4013, 4007, 3998, 4010, 4014, 4005, 4003, 4009, 4016}
	for i, v := range volts {
		b.SetCell(i, v)
	}
	b.RecalcCellStats()

	min, max, minIdx, maxIdx, sum := volts[0], volts[0], 0, 0, 0
	for i, v := range volts {
		if v < min {
			min, minIdx = v, i
		}
		if v > max {
			max, maxIdx = v, i
		}
		sum += v
	}
	if b.MinCell != min || b.MinCellIndex != minIdx {
		t.Fatalf("min: got %d@%d want %d@%d", b.MinCell, b.MinCellIndex, min, minIdx)
	}
	if b.MaxCell != max || b.MaxCellIndex != maxIdx {
		t.Fatalf("max: got %d@%d want %d@%d", b.MaxCell, b.MaxCellIndex, max, maxIdx)
	}
	if b.AvgCell != sum/len(volts) {
		t.Fatalf("avg: got %d want %d", b.AvgCell, sum/len(volts))
	}
}

func TestRecalcCellStatsIgnoresEmptySlots(t *testing.T) {
	b := &BmsSnapshot{CellCount: 20}
	b.SetCell(3, 4100)
	b.SetCell(7, 3900)
	b.RecalcCellStats()
	if b.MinCell != 3900 || b.MinCellIndex != 7 {
		t.Fatalf("min: got %d@%d", b.MinCell, b.MinCellIndex)
	}
	if b.MaxCell != 4100 || b.MaxCellIndex != 3 {
		t.Fatalf("max: got %d@%d", b.MaxCell, b.MaxCellIndex)
	}
	if b.AvgCell != 4000 {
		t.Fatalf("avg: got %d", b.AvgCell)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &VehicleState{Voltage: 8400, BMS1: &BmsSnapshot{CellCount: 20}}
	cp := orig.Clone()
	cp.Voltage = 0
	cp.BMS1.CellCount = 5
	if orig.Voltage != 8400 || orig.BMS1.CellCount != 20 {
		t.Fatalf("clone aliases original")
	}
	var nilState *VehicleState
	if got := nilState.Clone(); got == nil {
		t.Fatalf("Clone of nil should return fresh state")
	}
}
