package prediction

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

var mockCategories = []string{"5812", "5411", "5541", "5814", "5999", "5912"}

// MockService returns deterministic predictions by ~100m grid cell so that a
// stationary device sees a stable category. Pushes are counted and dropped.
type MockService struct {
	mu     sync.Mutex
	pushes []Telemetry
}

func NewMockService() *MockService { return &MockService{} }

func (s *MockService) Predict(ctx context.Context, lat, lng, _ float64, _ bool) (Prediction, error) {
	select {
	case <-ctx.Done():
		return Prediction{}, ctx.Err()
	default:
	}

	cellLat := int64(math.Floor(lat * 1000))
	cellLng := int64(math.Floor(lng * 1000))
	h := fnv.New32a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(cellLat >> (8 * i))
		buf[8+i] = byte(cellLng >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	sum := h.Sum32()

	return Prediction{
		Category:   mockCategories[sum%uint32(len(mockCategories))],
		Confidence: 0.6 + float64(sum%31)/100,
		Method:     "mock_grid",
	}, nil
}

func (s *MockService) PushUpdate(ctx context.Context, t Telemetry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, t)
	return nil
}

// Pushes returns every telemetry payload received so far.
func (s *MockService) Pushes() []Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Telemetry, len(s.pushes))
	copy(out, s.pushes)
	return out
}
