package contract

import (
	"context"
	"time"

	"github.com/huangsam/epss/schema"
	"github.com/stretchr/testify/mock"
)

// MockScoreSource is a mock implementation of ScoreSource for testing.
type MockScoreSource struct {
	mock.Mock
}

var _ ScoreSource = &MockScoreSource{} // Compile-time check

// Fetch implements the ScoreSource interface.
func (m *MockScoreSource) Fetch(ctx context.Context, date time.Time) ([]schema.Score, error) {
	args := m.Called(ctx, date)
	scores, _ := args.Get(0).([]schema.Score)
	return scores, args.Error(1)
}

// LatestDate implements the ScoreSource interface.
func (m *MockScoreSource) LatestDate(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}
