package lifecycle

import "context"

// ChannelSource is a Source fed by Publish, used by the HTTP lifecycle
// endpoint and tests.
type ChannelSource struct {
	ch chan State
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSource{ch: make(chan State, buffer)}
}

func (s *ChannelSource) Events() <-chan State { return s.ch }

// Publish blocks until the transition is accepted or ctx is done.
func (s *ChannelSource) Publish(ctx context.Context, state State) error {
	select {
	case s.ch <- state:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
