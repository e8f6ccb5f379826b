package timing

import (
	"errors"
	"fmt"
)

var (
	// ErrFenceTimeout is reported when a fence wait exceeds Options.FenceTimeout.
	ErrFenceTimeout = errors.New("presentation fence wait timed out")

	// ErrTimerStopped is returned by tick consumers, such as pipeline.Run,
	// when the timer's worker exits while they still expect ticks.
	ErrTimerStopped = errors.New("frame timer stopped")
)

// FenceFault reports a failed presentation fence wait. The presentation state
// is unknown afterwards, so the timer stops honouring fence actions.
type FenceFault struct {
	Err error
}

func (f *FenceFault) Error() string {
	return fmt.Sprintf("fence wait fault: %v", f.Err)
}

func (f *FenceFault) Unwrap() error {
	return f.Err
}

// SubscriberFault reports a tick handler that panicked.
type SubscriberFault struct {
	ID    SubscriptionID
	Value any
}

func (f *SubscriberFault) Error() string {
	return fmt.Sprintf("tick subscriber %d panicked: %v", f.ID, f.Value)
}

func (f *SubscriberFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
