//go:build !rp2040 && !rp2350

package platform

import (
	"errors"

	"temppair-go/drivers/at25ff"
	"temppair-go/services/hal/internal/halcore"
	"temppair-go/services/hal/internal/platform/boards"
)

// ErrNoBoard is returned on builds without board I/O. Host tools and tests
// supply their own ports.
var ErrNoBoard = errors.New("platform: no board I/O on this target")

func OpenRadio(boards.Board) (halcore.UARTPort, error) { return nil, ErrNoBoard }

func ButtonPin(boards.Board) (halcore.IRQPin, error) { return nil, ErrNoBoard }

func RadioResetPin(boards.Board) (halcore.OutputPin, error) { return nil, ErrNoBoard }

func OpenFlash(boards.Board) (*at25ff.Regions, error) { return nil, ErrNoBoard }
