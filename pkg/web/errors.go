package web

import (
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/b2"
)

// ErrConv writes an error response for a failed upstream call and returns the status used.
func ErrConv(c *gin.Context, err error) int {
	var b2err *b2.Error
	if errors.As(err, &b2err) && b2err.Status >= 400 {
		log.Warn().Err(err).Msg("B2 request failed")
		c.Data(b2err.Status, "text/plain; charset=utf-8", []byte(b2err.Message))
		return b2err.Status
	}
	// If we can't reach B2, call a spade a spade
	var netErr net.Error
	if errors.As(err, &netErr) {
		log.Error().Err(err).Msg("Failed to reach B2")
		c.Data(http.StatusBadGateway, "text/plain; charset=utf-8", []byte("bad gateway"))
		return http.StatusBadGateway
	}
	log.Error().Err(err).Msg("Failed to serve file")
	c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("internal server error"))
	return http.StatusInternalServerError
}
