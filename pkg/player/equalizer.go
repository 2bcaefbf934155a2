// ABOUTME: Equalizer settings for a player
// ABOUTME: Fifteen bands with validated gains and a flat default
package player

import (
	"errors"
	"fmt"

	"github.com/lavago/lavago/pkg/protocol"
)

const (
	BandCount = 15
	MinGain   = -0.25
	MaxGain   = 1.0
)

var ErrInvalidBand = errors.New("player: invalid equalizer band")

// Equalizer is a named set of band gains. Bands not given are 0.
type Equalizer struct {
	name  string
	gains [BandCount]float64
}

// NewEqualizer validates bands and builds an equalizer.
func NewEqualizer(name string, bands ...protocol.Band) (*Equalizer, error) {
	eq := &Equalizer{name: name}
	for _, b := range bands {
		if b.Band < 0 || b.Band >= BandCount {
			return nil, fmt.Errorf("%w: band %d out of range 0-%d", ErrInvalidBand, b.Band, BandCount-1)
		}
		if b.Gain < MinGain || b.Gain > MaxGain {
			return nil, fmt.Errorf("%w: gain %.2f out of range %.2f to %.2f", ErrInvalidBand, b.Gain, MinGain, MaxGain)
		}
		eq.gains[b.Band] = b.Gain
	}
	return eq, nil
}

// Flat returns the equalizer that neither cuts nor boosts any band.
func Flat() *Equalizer {
	return &Equalizer{name: "Flat"}
}

func (e *Equalizer) Name() string { return e.name }

// Gain returns the gain of one band.
func (e *Equalizer) Gain(band int) float64 {
	if band < 0 || band >= BandCount {
		return 0
	}
	return e.gains[band]
}

// Bands returns all bands in order, ready to send.
func (e *Equalizer) Bands() []protocol.Band {
	bands := make([]protocol.Band, BandCount)
	for i, g := range e.gains {
		bands[i] = protocol.Band{Band: i, Gain: g}
	}
	return bands
}

func (e *Equalizer) String() string {
	return e.name
}
