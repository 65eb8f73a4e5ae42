package progression

import (
	"fmt"
	"strings"

	"github.com/dukerupert/famboard/internal/model"
)

type Energy string

const (
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

var pointValues = map[Energy]int{
	EnergyLow:    5,
	EnergyMedium: 10,
	EnergyHigh:   15,
}

// ParseEnergy normalizes an energy tag. The traffic-light names used by the
// dashboard (verde, amarillo, rojo) are accepted as aliases.
func ParseEnergy(s string) (Energy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "verde", "green":
		return EnergyLow, nil
	case "medium", "amarillo", "yellow":
		return EnergyMedium, nil
	case "high", "rojo", "red":
		return EnergyHigh, nil
	}
	return "", fmt.Errorf("%w: unknown energy %q", model.ErrInvalidState, s)
}

// Points returns the award for completing a task with energy e.
func Points(e Energy) (int, error) {
	p, ok := pointValues[e]
	if !ok {
		return 0, fmt.Errorf("%w: unknown energy %q", model.ErrInvalidState, e)
	}
	return p, nil
}
