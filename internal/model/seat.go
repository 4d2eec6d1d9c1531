package model

import (
	"strconv"
	"strings"
)

// Seat states reported by the seat map.
const (
	SeatFree   = "FREE"
	SeatLocked = "LOCKED"
	SeatBooked = "BOOKED"
)

// SeatStatus is one cell of a show's seat map.
type SeatStatus struct {
	Seat   string `json:"seat"`
	Status string `json:"status"`
	// LockedBy is only set for LOCKED seats.
	LockedBy uint64 `json:"locked_by,omitempty"`
}

// RowLabel converts a zero-based row index to A, B, ..., Z, AA, AB, ...
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// SeatLabel names the seat at zero-based row and one-based col.
func SeatLabel(row, col int) string {
	return RowLabel(row) + strconv.Itoa(col)
}

// ParseSeat splits a label such as "b12" into a zero-based row index and a
// one-based column. Labels are case-insensitive.
func ParseSeat(label string) (row, col int, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		row = row*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) || s[i] == '0' {
		return 0, 0, false
	}
	col, err := strconv.Atoi(s[i:])
	if err != nil || col < 1 {
		return 0, 0, false
	}
	return row - 1, col, true
}

// Layout returns every seat label of the show, row by row.
func (s Show) Layout() []string {
	out := make([]string, 0, s.Capacity())
	for r := 0; r < int(s.SeatRows); r++ {
		for c := 1; c <= int(s.SeatCols); c++ {
			out = append(out, SeatLabel(r, c))
		}
	}
	return out
}

// NormalizeSeats canonicalises labels, drops duplicates while keeping the
// first occurrence order, and reports labels outside the show's layout.
func (s Show) NormalizeSeats(labels []string) (seats, invalid []string) {
	seen := make(map[string]struct{}, len(labels))
	for _, raw := range labels {
		row, col, ok := ParseSeat(raw)
		if !ok || row >= int(s.SeatRows) || col > int(s.SeatCols) {
			invalid = append(invalid, raw)
			continue
		}
		label := SeatLabel(row, col)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		seats = append(seats, label)
	}
	return seats, invalid
}
