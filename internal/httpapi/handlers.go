package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/receiptsplit/internal/export"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/payref"
	"github.com/mmynk/receiptsplit/internal/storage"
	"github.com/mmynk/receiptsplit/internal/visualcode"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxScale        = 32
)

// payReference is where a shared payment reference lands. It echoes the
// decoded reference with its visual code; no payment is executed.
func (h *handlers) payReference(c *gin.Context) {
	ref, err := payref.Parse(c.Request.URL.RequestURI())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canonical := h.deps.Refs.Build(ref.ReceiptID, ref.ParticipantID, ref.Amount)
	c.JSON(http.StatusOK, gin.H{
		"receiptId":       ref.ReceiptID,
		"participantId":   ref.ParticipantID,
		"amount":          ref.Amount.StringFixed(2),
		"formattedAmount": money.FormatAmount(ref.Amount),
		"reference":       canonical,
		"code":            visualcode.Render(canonical).Rows(),
	})
}

func (h *handlers) codeImage(c *gin.Context) {
	value := c.Query("value")
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}
	writeCode(c, value)
}

func (h *handlers) participantCode(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	pid := c.Param("pid")
	for _, p := range session.Allocation.Participants {
		if p.ID == pid {
			writeCode(c, p.Reference)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
}

func (h *handlers) exportWorkbook(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := export.Write(&buf, session.Receipt, session.Allocation)
	if errors.Is(err, export.ErrNothingToExport) {
		c.JSON(http.StatusConflict, gin.H{"error": "no participants to export; generate participants first"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build workbook"})
		return
	}

	h.deps.Sessions.Exported()
	name := export.FileName(session.Receipt.ID, h.deps.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *handlers) session(c *gin.Context) (*models.Session, bool) {
	session, err := h.deps.Sessions.Session(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	return session, true
}

func writeCode(c *gin.Context, value string) {
	scale := visualcode.DefaultScale
	if s := c.Query("scale"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxScale {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("scale must be between 1 and %d", maxScale)})
			return
		}
		scale = n
	}

	var buf bytes.Buffer
	if err := visualcode.Render(value).PNG(&buf, scale); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render code"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
