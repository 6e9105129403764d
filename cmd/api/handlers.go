package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chorusapp/chorus/internal/metrics"
	"github.com/chorusapp/chorus/internal/playback"
	"github.com/chorusapp/chorus/internal/session"
	"github.com/chorusapp/chorus/internal/srs"
	"github.com/chorusapp/chorus/internal/storage"
	"github.com/chorusapp/chorus/internal/subtitles"
	"github.com/chorusapp/chorus/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	if err := api.cache.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Subtitle endpoints

type ingestRequest struct {
	VideoID  string                   `json:"video_id" binding:"required"`
	Segments []models.SubtitleSegment `json:"segments" binding:"required"`
}

// Ingest a subtitle feed for the watched video
func (api *API) ingestSubtitles(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	idx := api.subtitles.Ingest(c.Request.Context(), req.VideoID, req.Segments)

	c.JSON(http.StatusCreated, gin.H{
		"video_id": req.VideoID,
		"segments": idx.Len(),
	})
}

// Get the ingested segments for a video, restoring from cache on a revisit
func (api *API) getSubtitles(c *gin.Context) {
	videoID := c.Param("videoID")

	idx, ok := api.subtitles.Get(videoID)
	if !ok {
		idx, ok = api.subtitles.Restore(c.Request.Context(), videoID)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subtitles for video"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id": videoID,
		"segments": idx.Segments(),
	})
}

// Resolve the segment under the playback clock
func (api *API) getCurrentSegment(c *gin.Context) {
	videoID := c.Param("videoID")

	t, err := strconv.ParseFloat(c.Query("t"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter t must be a number"})
		return
	}

	idx, ok := api.subtitles.Get(videoID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subtitles for video"})
		return
	}

	i := idx.ResolveCurrent(t)
	if i == subtitles.NoCurrent {
		c.JSON(http.StatusOK, gin.H{"index": subtitles.NoCurrent})
		return
	}

	segment, _ := idx.Segment(i)
	c.JSON(http.StatusOK, gin.H{
		"index":   i,
		"segment": segment,
	})
}

type selectionRequest struct {
	Indices []int `json:"indices" binding:"required"`
}

// Preview the selection range the chosen segments produce
func (api *API) buildSelection(c *gin.Context) {
	videoID := c.Param("videoID")

	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	idx, ok := api.subtitles.Get(videoID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subtitles for video"})
		return
	}

	selection, err := idx.BuildRange(req.Indices)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, selection)
}

// Bookmark endpoints

type bookmarkRequest struct {
	Index *int `json:"index" binding:"required"`
}

// Bookmark a segment for later practice
func (api *API) addBookmark(c *gin.Context) {
	videoID := c.Param("videoID")

	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := api.cache.AddBookmark(c.Request.Context(), videoID, *req.Index); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"video_id": videoID,
		"index":    *req.Index,
	})
}

// List the bookmarked segment indices for a video
func (api *API) listBookmarks(c *gin.Context) {
	videoID := c.Param("videoID")

	indices, err := api.cache.GetBookmarks(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":  videoID,
		"bookmarks": indices,
	})
}

// Remove a bookmark
func (api *API) removeBookmark(c *gin.Context) {
	videoID := c.Param("videoID")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	if err := api.cache.RemoveBookmark(c.Request.Context(), videoID, index); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Bookmark removed"})
}

// Media endpoints

// Upload source media for server-side capture
func (api *API) uploadMedia(c *gin.Context) {
	videoID := c.PostForm("video_id")
	if videoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_id is required"})
		return
	}

	file, err := c.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No media file provided"})
		return
	}

	tempPath := filepath.Join(api.cfg.Practice.TempDir, uuid.New().String())
	if err := os.MkdirAll(api.cfg.Practice.TempDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare temp dir"})
		return
	}
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	key := storage.MediaKey(videoID)
	if err := api.storage.UploadFile(c.Request.Context(), key, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to upload: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"video_id":    videoID,
		"storage_key": key,
	})
}

// Session endpoints

type startPracticeRequest struct {
	VideoID       string  `json:"video_id" binding:"required"`
	VideoTitle    string  `json:"video_title"`
	Indices       []int   `json:"indices" binding:"required"`
	MediaDuration float64 `json:"media_duration"`
}

// Start a practice session over the selected segments
func (api *API) startPractice(c *gin.Context) {
	var req startPracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, cleanup, err := api.mediaSource(c.Request.Context(), req.VideoID, req.MediaDuration)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	sess, err := api.sessions.StartPractice(c.Request.Context(), src, req.VideoID, req.VideoTitle, req.Indices)
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sess)
}

type startReviewRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

// Start a review session over a stored card
func (api *API) startReview(c *gin.Context) {
	var req startReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := api.sessions.StartReview(c.Request.Context(), req.CardID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sess)
}

// Get the active session
func (api *API) getSession(c *gin.Context) {
	sess, ok := api.sessions.Active()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active session"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

type recordRequest struct {
	ListenCount int     `json:"listen_count"`
	Rate        float64 `json:"rate"`
}

// Record through the host capture device and score the attempt. Available
// only when a capture device is configured; browser clients upload their
// recording instead.
func (api *API) recordSession(c *gin.Context) {
	var req recordRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Rate <= 0 {
		req.Rate = 1.0
	}

	mic := playback.NewDeviceMicrophone(
		api.cfg.Practice.FFmpegPath,
		api.cfg.Practice.MicFormat,
		api.cfg.Practice.MicDevice,
	)

	sess, err := api.sessions.Record(c.Request.Context(), mic, req.ListenCount, req.Rate, nil)
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Attach a client-recorded user clip and score the attempt
func (api *API) attachRecording(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	sess, err := api.sessions.AttachRecording(c.Request.Context(), &models.AudioClip{
		Data:     data,
		MimeType: mimeType,
	})
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// Stop an in-progress recording early
func (api *API) stopRecording(c *gin.Context) {
	api.sessions.StopRecording()
	c.JSON(http.StatusOK, gin.H{"message": "Recording stopped"})
}

// Promote the session's target clip to an SRS card
func (api *API) promoteCard(c *gin.Context) {
	card, err := api.sessions.Promote(c.Request.Context())
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, card)
}

type rateRequest struct {
	Quality *int `json:"quality" binding:"required"`
}

// Rate the active review session's card
func (api *API) rateSessionCard(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := api.sessions.RateCard(c.Request.Context(), *req.Quality)
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, card)
}

// Close the active session
func (api *API) closeSession(c *gin.Context) {
	api.sessions.Close(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

// Practice queue endpoints

// Add a segment to the practice queue
func (api *API) addQueueItem(c *gin.Context) {
	var item models.QueueItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	api.sessions.Queue().Add(c.Request.Context(), item)
	c.JSON(http.StatusCreated, gin.H{"queued": api.sessions.Queue().Len()})
}

// List the queued segments
func (api *API) listQueueItems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": api.sessions.Queue().Items()})
}

type nextQueueRequest struct {
	MediaDuration float64 `json:"media_duration"`
	VideoTitle    string  `json:"video_title"`
}

// Pop the queue head and start practicing it. An empty queue reports
// completion instead of starting a session.
func (api *API) nextQueueItem(c *gin.Context) {
	var req nextQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, ok := api.sessions.Queue().Next(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"done": true})
		return
	}

	src, cleanup, err := api.mediaSource(c.Request.Context(), item.VideoID, req.MediaDuration)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()

	sess, err := api.sessions.StartPractice(c.Request.Context(), src, item.VideoID, req.VideoTitle, []int{item.SubtitleIndex})
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"done":      false,
		"remaining": api.sessions.Queue().Len(),
		"session":   sess,
	})
}

// Clear the practice queue
func (api *API) clearQueue(c *gin.Context) {
	api.sessions.Queue().Clear(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Queue cleared"})
}

// SRS card endpoints

// List all cards
func (api *API) listCards(c *gin.Context) {
	cards, err := api.repo.ListCards(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

// List cards due for review, soonest first
func (api *API) listDueCards(c *gin.Context) {
	cards, err := api.repo.ListCards(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	due := srs.BuildReviewQueue(cards, time.Now())
	metrics.CardsDue.Set(float64(len(due)))

	c.JSON(http.StatusOK, gin.H{"cards": due})
}

// Apply a review rating to a card outside a session
func (api *API) reviewCard(c *gin.Context) {
	cardID := c.Param("id")

	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quality := *req.Quality
	if quality < 0 || quality > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quality must be 0-5"})
		return
	}

	card, err := api.repo.GetCard(c.Request.Context(), cardID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}

	rated := srs.Rate(*card, quality, time.Now())
	if err := api.repo.UpdateCard(c.Request.Context(), &rated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metrics.ReviewsTotal.WithLabelValues(strconv.Itoa(quality)).Inc()
	api.logger.LogReview(rated.ID, quality, rated.Interval, rated.EaseFactor)

	if err := api.queue.PublishEvent(c.Request.Context(), &models.PracticeEvent{
		Kind:      models.EventCardReviewed,
		CardID:    rated.ID,
		Quality:   &quality,
		Timestamp: time.Now(),
	}); err != nil {
		api.logger.WithError(err).Warn("Failed to publish review event")
	} else {
		metrics.EventsPublishedTotal.WithLabelValues(models.EventCardReviewed).Inc()
	}

	c.JSON(http.StatusOK, rated)
}

// Delete a card
func (api *API) deleteCard(c *gin.Context) {
	cardID := c.Param("id")

	if err := api.repo.DeleteCard(c.Request.Context(), cardID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Card deleted", "card_id": cardID})
}

// History and stats endpoints

// List practice history, most recent first
func (api *API) listHistory(c *gin.Context) {
	limit := models.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	entries, err := api.repo.ListHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Practice summary for the popup surface
func (api *API) getStats(c *gin.Context) {
	ctx := c.Request.Context()

	attempts, _ := api.cache.GetStat(ctx, "attempts")
	reviews, _ := api.cache.GetStat(ctx, "reviews")
	created, _ := api.cache.GetStat(ctx, "cards_created")

	historyCount, err := api.repo.CountHistory(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cards, err := api.repo.ListCards(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	due := srs.DueCards(cards, time.Now())

	avgScore, err := api.repo.AverageScore(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts":      attempts,
		"reviews":       reviews,
		"cards_created": created,
		"cards_total":   len(cards),
		"cards_due":     len(due),
		"history_count": historyCount,
		"average_score": avgScore,
		"queue_length":  api.sessions.Queue().Len(),
	})
}

// mediaSource materializes the stored media for a video as a local playback
// surface. The cleanup removes the temp copy.
func (api *API) mediaSource(ctx context.Context, videoID string, duration float64) (*playback.MediaFile, func(), error) {
	if err := os.MkdirAll(api.cfg.Practice.TempDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare temp dir: %w", err)
	}

	tempPath := filepath.Join(api.cfg.Practice.TempDir, uuid.New().String())
	key := storage.MediaKey(videoID)

	if err := api.storage.DownloadFile(ctx, key, tempPath); err != nil {
		return nil, nil, fmt.Errorf("no media uploaded for video %s", videoID)
	}

	src := playback.NewMediaFile(api.cfg.Practice.FFmpegPath, tempPath, duration)
	cleanup := func() { os.Remove(tempPath) }
	return src, cleanup, nil
}

// statusForSessionError maps pipeline failures to HTTP statuses.
func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBadState):
		return http.StatusConflict
	case errors.Is(err, models.ErrCaptureUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSeekTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
