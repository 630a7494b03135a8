package oscwire

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// Coords extracts x, y, z from a pose message regardless of precision
func Coords(msg *osc.Message) ([3]float64, error) {
	var out [3]float64
	if len(msg.Arguments) != 3 {
		return out, fmt.Errorf("%s: %d arguments, want 3", msg.Address, len(msg.Arguments))
	}
	for i, arg := range msg.Arguments {
		switch v := arg.(type) {
		case float32:
			out[i] = float64(v)
		case float64:
			out[i] = v
		default:
			return out, fmt.Errorf("%s: argument %d is %T", msg.Address, i, arg)
		}
	}
	return out, nil
}
