package models

import (
	"testing"
	"time"
)

func TestNewSRSCard(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	card := NewSRSCard("c1", "v1", "Title", "hello", 1.0, 2.5, "YXVkaW8=", now)

	if card.Interval != 1 {
		t.Errorf("expected interval 1, got %v", card.Interval)
	}
	if card.Repetition != 0 {
		t.Errorf("expected repetition 0, got %d", card.Repetition)
	}
	if card.EaseFactor != 2.5 {
		t.Errorf("expected ease factor 2.5, got %v", card.EaseFactor)
	}
	if !card.NextReview.Equal(now) {
		t.Errorf("new card should be due immediately")
	}
	if card.LastReview != nil {
		t.Errorf("new card should have no last review")
	}
}

func TestSRSCardDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	card := NewSRSCard("c1", "v1", "Title", "hello", 0, 1, "", now)

	if !card.Due(now) {
		t.Errorf("card due exactly at NextReview should be due")
	}
	if !card.Due(now.Add(time.Hour)) {
		t.Errorf("card past NextReview should be due")
	}
	if card.Due(now.Add(-time.Second)) {
		t.Errorf("card before NextReview should not be due")
	}
}

func TestDecodedAudioDuration(t *testing.T) {
	decoded := &DecodedAudio{Samples: make([]float64, 32000), SampleRate: 16000}
	if got := decoded.Duration(); got != 2.0 {
		t.Errorf("expected 2s, got %v", got)
	}

	zero := &DecodedAudio{Samples: []float64{0.1}, SampleRate: 0}
	if got := zero.Duration(); got != 0 {
		t.Errorf("expected 0 for invalid sample rate, got %v", got)
	}
}
