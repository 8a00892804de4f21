package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	documentdomain "github.com/smallbiznis/bizledger/internal/document/domain"
)

func (s *Server) GetInvoiceView(c *gin.Context) {
	resp, err := s.documentSvc.GetInvoiceView(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	doc, err := s.documentSvc.RenderInvoicePDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeDocument(c, doc)
}

func (s *Server) DownloadPaymentReceipt(c *gin.Context) {
	doc, err := s.documentSvc.RenderPaymentReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeDocument(c, doc)
}

func writeDocument(c *gin.Context, doc documentdomain.Document) {
	if doc.Location != "" {
		c.Header("X-Document-Location", doc.Location)
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}
