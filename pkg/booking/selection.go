package booking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadSelection is returned when a slot selection cannot be parsed.
var ErrBadSelection = errors.New("selection must be a comma list (0,1,2) or a range (0-2)")

// ParseSelection parses a user-supplied slot selection: either a comma list
// of positions ("0,1,2") or an inclusive numeric range ("0-2" meaning
// 0,1,2). Positions are offsets into one room's slot list; bounds are not
// checked here; out-of-range positions are dropped later when the booking
// request is built.
func ParseSelection(input string) ([]int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrBadSelection
	}

	if strings.Contains(input, "-") {
		parts := strings.SplitN(input, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadSelection, input)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadSelection, input)
		}
		var positions []int
		for i := start; i <= end; i++ {
			positions = append(positions, i)
		}
		return positions, nil
	}

	var positions []int
	for _, part := range strings.Split(input, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadSelection, input)
		}
		positions = append(positions, n)
	}
	return positions, nil
}
