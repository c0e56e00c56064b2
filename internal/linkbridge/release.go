package linkbridge

import (
	"context"
	"errors"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

// LinkedDevices lists headsets by connection state. *headset.Service
// satisfies it.
type LinkedDevices interface {
	DevicesMatchingStates(states ...headset.ConnectionState) []headset.DeviceID
}

// ReleaseAll confirms every headset whose link is up or in flight as
// Disconnected. It is used when the link layer itself goes away, since no
// confirmation will ever arrive for those links. Audio is cleared by the
// service as part of each disconnect.
//
// Returns how many headsets were released and the joined confirm errors.
func ReleaseAll(ctx context.Context, devices LinkedDevices, confirmer Confirmer) (int, error) {
	ids := devices.DevicesMatchingStates(
		headset.StateConnecting,
		headset.StateConnected,
		headset.StateDisconnecting,
	)

	var errs []error
	released := 0
	for _, id := range ids {
		if err := confirmer.Confirm(ctx, headset.ConnectionConfirmation(id, headset.StateDisconnected)); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
	}
	return released, errors.Join(errs...)
}
