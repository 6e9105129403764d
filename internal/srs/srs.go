package srs

import (
	"math"
	"sort"
	"time"

	"github.com/chorusapp/chorus/pkg/models"
)

// Rate applies one SM-2 review transition to a card and returns the updated
// copy. quality is 0-5; the review surface produces only 0, 3, 4 and 5.
// The card itself is not mutated.
func Rate(card models.SRSCard, quality int, now time.Time) models.SRSCard {
	if quality >= 3 {
		switch card.Repetition {
		case 0:
			card.Interval = 1
		case 1:
			card.Interval = 6
		default:
			card.Interval = math.Round(card.Interval * card.EaseFactor)
		}
		card.Repetition++
	} else {
		card.Repetition = 0
		card.Interval = 1
	}

	// Ease factor update runs on both branches. Floor at 1.3.
	q := float64(quality)
	ease := card.EaseFactor + (0.1 - (5-q)*(0.08+(5-q)*0.02))
	if ease < models.MinEaseFactor {
		ease = models.MinEaseFactor
	}
	card.EaseFactor = ease

	last := now
	card.LastReview = &last
	card.NextReview = now.Add(time.Duration(card.Interval * 24 * float64(time.Hour)))

	return card
}

// DueCards returns the subsequence of cards due at now, preserving stored
// order. Callers building a batch review session sort explicitly via
// BuildReviewQueue.
func DueCards(cards []models.SRSCard, now time.Time) []models.SRSCard {
	var due []models.SRSCard
	for _, card := range cards {
		if card.Due(now) {
			due = append(due, card)
		}
	}
	return due
}

// BuildReviewQueue returns the due cards sorted soonest first for a batch
// review session.
func BuildReviewQueue(cards []models.SRSCard, now time.Time) []models.SRSCard {
	queue := DueCards(cards, now)
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].NextReview.Before(queue[j].NextReview)
	})
	return queue
}
