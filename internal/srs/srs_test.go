package srs

import (
	"testing"
	"time"

	"github.com/chorusapp/chorus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCard(t *testing.T) models.SRSCard {
	t.Helper()
	return *models.NewSRSCard("card-1", "video-1", "Lesson", "hello world", 1.0, 2.5, "", time.Now())
}

func TestRate_SuccessfulProgression(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	card := newCard(t)

	// First successful review: one day.
	card = Rate(card, models.QualityGood, now)
	assert.Equal(t, 1.0, card.Interval)
	assert.Equal(t, 1, card.Repetition)

	// Second: six days.
	card = Rate(card, models.QualityGood, now)
	assert.Equal(t, 6.0, card.Interval)
	assert.Equal(t, 2, card.Repetition)

	// Third: previous interval times the ease factor, rounded.
	ease := card.EaseFactor
	card = Rate(card, models.QualityGood, now)
	assert.Equal(t, 3, card.Repetition)
	assert.Equal(t, float64(int(6*ease+0.5)), card.Interval)
}

func TestRate_ForgetResets(t *testing.T) {
	now := time.Now()
	card := newCard(t)

	card = Rate(card, models.QualityGood, now)
	card = Rate(card, models.QualityGood, now)
	card = Rate(card, models.QualityGood, now)
	require.Greater(t, card.Repetition, 2)

	card = Rate(card, models.QualityAgain, now)
	assert.Equal(t, 0, card.Repetition)
	assert.Equal(t, 1.0, card.Interval)
}

func TestRate_EaseFactorUpdatesOnBothBranches(t *testing.T) {
	now := time.Now()

	// Quality 5 raises the ease factor.
	card := newCard(t)
	card = Rate(card, models.QualityEasy, now)
	assert.InDelta(t, 2.6, card.EaseFactor, 1e-9)

	// Quality 4 leaves it unchanged.
	card = newCard(t)
	card = Rate(card, models.QualityGood, now)
	assert.InDelta(t, 2.5, card.EaseFactor, 1e-9)

	// Quality 3 lowers it.
	card = newCard(t)
	card = Rate(card, models.QualityHard, now)
	assert.InDelta(t, 2.36, card.EaseFactor, 1e-9)

	// A failed review also lowers it.
	card = newCard(t)
	card = Rate(card, models.QualityAgain, now)
	assert.InDelta(t, 1.7, card.EaseFactor, 1e-9)
}

func TestRate_EaseFactorFloor(t *testing.T) {
	now := time.Now()
	card := newCard(t)

	for i := 0; i < 10; i++ {
		card = Rate(card, models.QualityAgain, now)
	}

	assert.Equal(t, models.MinEaseFactor, card.EaseFactor)
}

func TestRate_SchedulesNextReview(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	card := newCard(t)

	card = Rate(card, models.QualityGood, now)
	assert.Equal(t, now.Add(24*time.Hour), card.NextReview)
	require.NotNil(t, card.LastReview)
	assert.Equal(t, now, *card.LastReview)

	card = Rate(card, models.QualityGood, now)
	assert.Equal(t, now.Add(6*24*time.Hour), card.NextReview)
}

func TestRate_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	card := newCard(t)
	before := card

	Rate(card, models.QualityEasy, now)

	assert.Equal(t, before, card)
}

func TestDueCards(t *testing.T) {
	now := time.Now()

	due1 := newCard(t)
	due1.ID = "due-1"
	due1.NextReview = now.Add(-time.Hour)

	due2 := newCard(t)
	due2.ID = "due-2"
	due2.NextReview = now

	later := newCard(t)
	later.ID = "later"
	later.NextReview = now.Add(time.Hour)

	due := DueCards([]models.SRSCard{later, due1, due2}, now)
	require.Len(t, due, 2)

	// Stored order is preserved.
	assert.Equal(t, "due-1", due[0].ID)
	assert.Equal(t, "due-2", due[1].ID)
}

func TestBuildReviewQueue_SortsSoonestFirst(t *testing.T) {
	now := time.Now()

	a := newCard(t)
	a.ID = "a"
	a.NextReview = now.Add(-time.Hour)

	b := newCard(t)
	b.ID = "b"
	b.NextReview = now.Add(-3 * time.Hour)

	c := newCard(t)
	c.ID = "c"
	c.NextReview = now.Add(time.Hour)

	queue := BuildReviewQueue([]models.SRSCard{a, b, c}, now)
	require.Len(t, queue, 2)
	assert.Equal(t, "b", queue[0].ID)
	assert.Equal(t, "a", queue[1].ID)
}
