// FILE: ./internal/browser/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"sync"
	"time"
)

// mockExecutor records everything the pacing layer asks of it. Overrides replace the
// default behavior of a single method; they must not call back into the Humanoid.
type mockExecutor struct {
	mu         sync.Mutex
	sleeps     []time.Duration
	moves      [][2]float64
	scrolls    []float64
	typed      []rune
	paragraphs int
	viewport   float64

	MockSleep          func(ctx context.Context, d time.Duration) error
	MockMouseMove      func(ctx context.Context, x, y float64) error
	MockViewportHeight func(ctx context.Context) (float64, error)
	MockTypeChar       func(ctx context.Context, id int64, r rune) error
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{viewport: 900}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return m.DefaultSleep(ctx, d)
}

func (m *mockExecutor) DefaultSleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	return nil
}

func (m *mockExecutor) MouseMove(ctx context.Context, x, y float64) error {
	if m.MockMouseMove != nil {
		return m.MockMouseMove(ctx, x, y)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = append(m.moves, [2]float64{x, y})
	return nil
}

func (m *mockExecutor) ScrollBy(ctx context.Context, dy float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrolls = append(m.scrolls, dy)
	return nil
}

func (m *mockExecutor) ViewportHeight(ctx context.Context) (float64, error) {
	if m.MockViewportHeight != nil {
		return m.MockViewportHeight(ctx)
	}
	return m.viewport, nil
}

func (m *mockExecutor) TypeChar(ctx context.Context, id int64, r rune) error {
	if m.MockTypeChar != nil {
		return m.MockTypeChar(ctx, id, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typed = append(m.typed, r)
	return nil
}

func (m *mockExecutor) InsertParagraph(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typed = append(m.typed, '\n')
	m.paragraphs++
	return nil
}

func (m *mockExecutor) totalSlept() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total time.Duration
	for _, d := range m.sleeps {
		total += d
	}
	return total
}
