package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"profile-ml/service/internal/recognition"
	"profile-ml/service/internal/store"
	"profile-ml/service/internal/util"
)

func (s *Server) handleRecognize(c *gin.Context) {
	image, ok := s.bindImage(c)
	if !ok {
		return
	}

	timer := util.StartTimer()
	result, err := s.gateway.Recognize(c.Request.Context(), image)
	if err != nil {
		s.renderAppError(c, err, "recognition failed")
		return
	}
	s.recordRecognition(c, timer, result)
	c.JSON(http.StatusOK, success(result))
}

func (s *Server) handleRecognizeBulk(c *gin.Context) {
	var req BulkImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Images) == 0 {
		s.renderError(c, http.StatusBadRequest, errImageRequired)
		return
	}
	images := make([][]byte, 0, len(req.Images))
	for i, raw := range req.Images {
		image, err := decodeImageData(raw)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("image %d: %w", i, err))
			return
		}
		images = append(images, image)
	}

	timer := util.StartTimer()
	results, err := s.gateway.RecognizeBulk(c.Request.Context(), images)
	if err != nil {
		s.renderAppError(c, err, "recognition failed")
		return
	}
	s.recordRecognition(c, timer, results...)
	c.JSON(http.StatusOK, success(results))
}

func (s *Server) handleValidate(c *gin.Context) {
	image, ok := s.bindImage(c)
	if !ok {
		return
	}
	result, err := s.gateway.Validate(c.Request.Context(), image)
	if err != nil {
		s.renderAppError(c, err, "validation failed")
		return
	}
	c.JSON(http.StatusOK, success(result))
}

func (s *Server) handleTaxonomy(c *gin.Context) {
	taxonomy := s.gateway.Taxonomy()
	c.JSON(http.StatusOK, success(TaxonomyResponse{
		Version:   taxonomy.Version(),
		Threshold: s.gateway.Threshold(),
		Objects:   taxonomy.Entries(),
	}))
}

// bindImage decodes the image_data field, rendering a 400 when it is missing or malformed.
func (s *Server) bindImage(c *gin.Context) ([]byte, bool) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, errImageRequired)
		return nil, false
	}
	image, err := decodeImageData(req.ImageData)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return nil, false
	}
	return image, true
}

func (s *Server) recordRecognition(c *gin.Context, timer util.Timer, results ...recognition.Result) {
	requestID := c.GetString(requestIDKey)
	event := &store.RecognitionEvent{
		RequestID:  requestID,
		Detector:   s.gateway.DetectorName(),
		Images:     len(results),
		DurationMs: timer.ElapsedMs(),
	}
	var tags []string
	for _, result := range results {
		event.Detected += len(result.DetectedObjects)
		event.Tags += len(result.SuggestedTags)
		event.NSFW = event.NSFW || result.IsNSFW
		tags = append(tags, tagIDs(result)...)
	}
	event.SetTagIDs(tags)

	if s.db != nil {
		if err := s.db.SaveRecognition(event); err != nil {
			logrus.WithError(err).WithField("request_id", requestID).Warn("record recognition event")
		}
	}
	s.notifier.Broadcast(Event{
		Type:      EventRecognition,
		RequestID: requestID,
		Images:    event.Images,
		Detected:  event.Detected,
		Tags:      tags,
	})
}
