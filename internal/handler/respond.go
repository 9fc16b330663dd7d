package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/rs/zerolog/log"
)

// respondError writes err with the HTTP status of its kind
func respondError(c *gin.Context, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = service.Internal("internal server error", err)
	}

	status := statusOf(se.Kind)
	resp := model.ErrorResponse{
		Error:   se.Kind.String(),
		Code:    se.Code,
		Message: se.Message,
		Fields:  se.Fields,
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		resp.Code = ""
		resp.Message = "internal server error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func statusOf(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindAuth:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondBindError reports a gin binding failure as a validation error with per-field reasons
func respondBindError(c *gin.Context, err error) {
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[toSnake(fe.Field())] = describeTag(fe)
		}
	}
	msg := "invalid request"
	if len(fields) == 0 {
		msg = "invalid request body"
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{
		Error:   service.KindValidation.String(),
		Code:    "invalid_request",
		Message: msg,
		Fields:  fields,
	})
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "this field is required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// toSnake maps a Go field name to its json name, e.g. FirstName -> first_name
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// uuidQuery parses a required uuid query parameter
func uuidQuery(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, service.Validation(name, "this field is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, service.Validation(name, "must be a valid uuid")
	}
	return id, nil
}

// intQuery parses an optional integer query parameter
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, service.Validation(name, "must be an integer")
	}
	return n, nil
}

// includeQuery reads include[] (or include) as a section list
func includeQuery(c *gin.Context) []string {
	if v := c.QueryArray("include[]"); len(v) > 0 {
		return v
	}
	var out []string
	for _, v := range c.QueryArray("include") {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
