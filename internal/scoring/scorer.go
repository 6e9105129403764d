package scoring

import (
	"math"

	"github.com/chorusapp/chorus/pkg/models"
)

// Analysis parameters. Fixed: changing them changes every historical score.
const (
	WindowSize = 2048
	HopSize    = 512

	// silenceFloor is the RMS energy below which a window counts as silent.
	// Windows where both signals are silent carry no information and are
	// skipped.
	silenceFloor = 0.01
)

// Score band thresholds for user-facing feedback.
const (
	BandExcellent = 80
	BandGood      = 60
)

// Score computes a 0-100 pronunciation similarity score from two mono PCM
// buffers using windowed energy and normalized cross-correlation. Pure and
// deterministic: identical inputs always produce the identical score.
//
// Returns models.ErrInsufficientOverlap when the shorter buffer does not
// span a full analysis window; callers that mirror the original behavior
// surface that case as a plain 0.
func Score(original, user *models.DecodedAudio) (int, error) {
	originalData := original.Samples
	userData := user.Samples

	minLen := len(originalData)
	if len(userData) < minLen {
		minLen = len(userData)
	}

	numWindows := (minLen - WindowSize) / HopSize
	if minLen < WindowSize || numWindows <= 0 {
		return 0, models.ErrInsufficientOverlap
	}

	var sum float64
	var contributed int

	for i := 0; i < numWindows; i++ {
		offset := i * HopSize

		var origEnergy, userEnergy float64
		for j := 0; j < WindowSize; j++ {
			origEnergy += originalData[offset+j] * originalData[offset+j]
			userEnergy += userData[offset+j] * userData[offset+j]
		}
		origEnergy = math.Sqrt(origEnergy / WindowSize)
		userEnergy = math.Sqrt(userEnergy / WindowSize)

		if origEnergy < silenceFloor && userEnergy < silenceFloor {
			continue
		}

		var corr float64
		for j := 0; j < WindowSize; j++ {
			corr += originalData[offset+j] * userData[offset+j]
		}
		corr /= WindowSize

		similarity := (corr/(origEnergy*userEnergy+0.001) + 1) / 2
		if similarity < 0 {
			similarity = 0
		} else if similarity > 1 {
			similarity = 1
		}

		sum += similarity
		contributed++
	}

	if contributed == 0 {
		return 0, nil
	}

	return int(math.Round(100 * sum / float64(contributed))), nil
}

// Band maps a score to its feedback band.
func Band(score int) string {
	switch {
	case score >= BandExcellent:
		return "excellent"
	case score >= BandGood:
		return "good"
	default:
		return "needs work"
	}
}
