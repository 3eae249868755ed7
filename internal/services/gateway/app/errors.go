package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

var errNotConfigured = errors.New("feature not configured")

// statusFor maps an error to its HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var ve *model.ValidationError
	var se *upstream.StatusError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	case errors.As(err, &ve),
		errors.Is(err, weather.ErrInvalidDays),
		errors.Is(err, advisor.ErrSoilTypeRequired),
		errors.Is(err, advisor.ErrInvalidImage):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, soil.ErrNoSoilData):
		return http.StatusNotFound, "NO_SOIL_DATA"
	case errors.Is(err, errNotConfigured),
		errors.Is(err, weather.ErrMissingAPIKey),
		errors.Is(err, advisor.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, "NOT_CONFIGURED"
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.As(err, &se), errors.Is(err, advisor.ErrInvalidModelOutput):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.InvalidArgument:
			return http.StatusBadRequest, "INVALID_REQUEST"
		case codes.Unavailable:
			return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
		case codes.DeadlineExceeded:
			return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
		}
	}
	return http.StatusBadGateway, "UPSTREAM_ERROR"
}

func abortWithError(c *gin.Context, err error) {
	code, errCode := statusFor(err)
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error(), Code: errCode})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
}
