package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/filter"
	"tally/internal/gateway"
	"tally/internal/log"
	"tally/internal/session"
)

// amountInput accepts an amount as a JSON number or string. Anything that
// does not parse as a positive amount reads as zero, which validation
// then rejects with the amount message.
type amountInput struct {
	value decimal.Decimal
}

func (a *amountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	a.value, _ = core.ParseAmount(raw)
	return nil
}

type createRequest struct {
	Title    string      `json:"title"`
	Amount   amountInput `json:"amount"`
	Kind     core.Kind   `json:"type"`
	Category string      `json:"category"`
	Date     core.Date   `json:"date"`
	Note     string      `json:"note"`
}

func (r createRequest) fields() core.Fields {
	return core.Fields{
		Title:    r.Title,
		Amount:   r.Amount.value,
		Kind:     r.Kind,
		Category: r.Category,
		Date:     r.Date,
		Note:     r.Note,
	}
}

type updateRequest struct {
	Title    *string      `json:"title"`
	Amount   *amountInput `json:"amount"`
	Kind     *core.Kind   `json:"type"`
	Category *string      `json:"category"`
	Date     *core.Date   `json:"date"`
	Note     *string      `json:"note"`
}

func (r updateRequest) patch() core.Patch {
	p := core.Patch{
		Title:    r.Title,
		Kind:     r.Kind,
		Category: r.Category,
		Date:     r.Date,
		Note:     r.Note,
	}
	if r.Amount != nil {
		amount := r.Amount.value
		p.Amount = &amount
	}
	return p
}

func (s *Server) handleView(c *gin.Context) {
	owner := c.GetString(log.FieldOwner)
	criteria := filter.ParseQuery(c.Request.URL.Query())

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.viewWait)
	defer cancel()

	// a view still loading after the wait is served as such
	st, _ := s.views.State(ctx, owner)
	c.JSON(http.StatusOK, s.views.Build(st, criteria))
}

func (s *Server) handleRetry(c *gin.Context) {
	s.views.Retry(c.GetString(log.FieldOwner))
	c.Status(http.StatusAccepted)
}

func handleCategories(c *gin.Context) {
	kind := core.Kind(c.Query("type"))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": core.ErrInvalidKind.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": core.CategoriesFor(kind), "palette": core.ChartColors})
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	owner := c.GetString(log.FieldOwner)
	if err := s.gateway.Create(c.Request.Context(), owner, req.fields()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	current, err := s.authorize(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.gateway.UpdateRecord(c.Request.Context(), current, req.patch()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.authorize(c, id); err != nil {
		// deleting something already gone is not an error
		if errors.Is(err, feed.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		writeError(c, err)
		return
	}
	if err := s.gateway.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearAll(c *gin.Context) {
	owner := c.GetString(log.FieldOwner)
	result, err := s.gateway.ClearAll(c.Request.Context(), owner)

	var partial *gateway.PartialClearError
	if errors.As(err, &partial) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   partial.Error(),
			"deleted": len(result.Deleted),
			"failed":  result.Failed,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(result.Deleted), "failed": result.Failed})
}

// authorize checks that id belongs to the caller by looking it up in the
// caller's synchronized records, and returns the record found.
func (s *Server) authorize(c *gin.Context, id string) (core.Record, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.viewWait)
	defer cancel()

	st, err := s.views.State(ctx, c.GetString(log.FieldOwner))
	if err != nil {
		return core.Record{}, err
	}
	if st.Status == session.StatusError {
		return core.Record{}, st.Err
	}
	for _, r := range st.Records {
		if r.ID == id {
			return r, nil
		}
	}
	return core.Record{}, feed.ErrNotFound
}

// writeError maps an outcome to a status code and JSON body.
func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	status := http.StatusInternalServerError
	body := gin.H{"error": "internal error"}

	var (
		verr    *core.ValidationError
		merr    *gateway.MutationError
		syncErr *session.SyncError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body = gin.H{"error": "validation failed", "fields": verr.Messages()}
	case errors.Is(err, gateway.ErrNoOwner):
		status = http.StatusUnauthorized
		body = gin.H{"error": "authentication required"}
	case errors.Is(err, feed.ErrNotFound):
		status = http.StatusNotFound
		body = gin.H{"error": "transaction not found"}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body = gin.H{"error": "request timed out"}
	case errors.As(err, &syncErr):
		status = http.StatusServiceUnavailable
		body = gin.H{"error": "transactions unavailable, retry the session"}
	case errors.As(err, &merr):
		status = http.StatusBadGateway
		body = gin.H{"error": "could not save changes", "operation": merr.Op}
	}

	level := log.LevelForStatus(status)
	log.FromContext(ctx).Log(ctx, level, "Request failed",
		log.FieldStatusCode, status,
		log.FieldError, err.Error())
	c.JSON(status, body)
}
