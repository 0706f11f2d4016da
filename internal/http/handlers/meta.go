package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type MetaHandler struct {
	env      string
	version  string
	locale   string
	currency string
}

func NewMetaHandler(env, version, locale, currency string) *MetaHandler {
	return &MetaHandler{env: env, version: version, locale: locale, currency: currency}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":     "LoanGraph Reconciler",
		"version":  h.version,
		"env":      h.env,
		"locale":   h.locale,
		"currency": h.currency,
	})
}
