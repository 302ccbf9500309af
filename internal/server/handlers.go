package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/internal/sm2"
	"github.com/example/chunktrainer/internal/transfer"
)

// learnerHeader carries the opaque learner id. Who that learner is and how
// they authenticated is the front end's problem, not ours.
const learnerHeader = "X-Learner-ID"

func learnerID(c *gin.Context) string {
	if id := c.GetHeader(learnerHeader); id != "" {
		return id
	}
	return "local"
}

func chunkIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk id"})
		return 0, false
	}
	return id, true
}

// respondErr maps the error taxonomy onto HTTP statuses: caller errors are
// 400/404, corruption is 409 (the repair endpoint is the way out), and
// anything else is a storage failure the client may retry.
func (s *Server) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sm2.ErrInvalidQuality), errors.Is(err, sm2.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrCorrupted), errors.Is(err, database.ErrIDConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listChunks(c *gin.Context) {
	chunks, err := s.svc.AllChunks(c.Request.Context(), learnerID(c))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chunks)
}

type addChunkRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Answer string `json:"answer" binding:"required"`
}

func (s *Server) addChunk(c *gin.Context) {
	var req addChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chunk, err := s.svc.AddChunk(c.Request.Context(), learnerID(c), req.Prompt, req.Answer, time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, chunk)
}

type editChunkRequest struct {
	Prompt       *string    `json:"prompt"`
	Answer       *string    `json:"answer"`
	EaseFactor   *float64   `json:"ease_factor"`
	IntervalDays *int       `json:"interval_days"`
	Repetitions  *int       `json:"repetitions"`
	DueAt        *time.Time `json:"due_at"`
}

func (s *Server) editChunk(c *gin.Context) {
	id, ok := chunkIDParam(c)
	if !ok {
		return
	}
	var req editChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chunk, err := s.svc.GetChunk(c.Request.Context(), learnerID(c), id)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	if req.Prompt != nil {
		chunk.Prompt = *req.Prompt
	}
	if req.Answer != nil {
		chunk.Answer = *req.Answer
	}
	if req.EaseFactor != nil {
		chunk.EaseFactor = *req.EaseFactor
	}
	if req.IntervalDays != nil {
		chunk.IntervalDays = *req.IntervalDays
	}
	if req.Repetitions != nil {
		chunk.Repetitions = *req.Repetitions
	}
	if req.DueAt != nil {
		chunk.DueAt = *req.DueAt
	}
	if err := s.svc.SaveChunk(c.Request.Context(), chunk, time.Now().UTC()); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

type idsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

func (s *Server) deleteChunks(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.DeleteChunks(c.Request.Context(), learnerID(c), req.IDs); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}

func (s *Server) resetIntervals(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.ResetIntervals(c.Request.Context(), learnerID(c), req.IDs, time.Now().UTC()); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": len(req.IDs)})
}

// wipeAll destroys the learner's namespace. The explicit confirm parameter
// is the API-level guard; the UI is expected to ask the human first.
func (s *Server) wipeAll(c *gin.Context) {
	if c.Query("confirm") != "yes" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=yes to wipe all chunks"})
		return
	}
	if err := s.svc.WipeAll(c.Request.Context(), learnerID(c)); err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "wiped"})
}

func (s *Server) todayBatch(c *gin.Context) {
	chunks, err := s.svc.TodayBatch(c.Request.Context(), learnerID(c), time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chunks)
}

type reviewRequest struct {
	ChunkID int64  `json:"chunk_id" binding:"required"`
	Quality string `json:"quality" binding:"required"`
}

func (s *Server) submitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quality, err := sm2.ParseQuality(req.Quality)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	chunk, err := s.svc.SubmitReview(c.Request.Context(), learnerID(c), req.ChunkID, quality, time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) chunkHistory(c *gin.Context) {
	id, ok := chunkIDParam(c)
	if !ok {
		return
	}
	progress, err := s.svc.Progress(c.Request.Context(), learnerID(c), id)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) verifyChunk(c *gin.Context) {
	id, ok := chunkIDParam(c)
	if !ok {
		return
	}
	result, err := s.svc.VerifyChunk(c.Request.Context(), learnerID(c), id)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) repairChunk(c *gin.Context) {
	id, ok := chunkIDParam(c)
	if !ok {
		return
	}
	chunk, err := s.svc.RepairChunk(c.Request.Context(), learnerID(c), id, time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context(), learnerID(c), time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// exportCSV buffers the whole file before responding, so a failed export
// turns into an error status instead of a 200 with a truncated body.
func (s *Server) exportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := transfer.ExportCSV(c.Request.Context(), s.store, learnerID(c), &buf); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="chunks.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (s *Server) importFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		s.respondErr(c, err)
		return
	}
	defer f.Close()

	result, err := transfer.Import(c.Request.Context(), s.store, learnerID(c), header.Filename, f, time.Now().UTC())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
