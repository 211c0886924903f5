package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerlink/backend/internal/interfaces/http/dto"
)

func TestSetupValidator(t *testing.T) {
	// Should not panic
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestFormatValidationErrors(t *testing.T) {
	type syncInput struct {
		Status string `json:"status" binding:"required,oneof=paid cancelled"`
		Limit  int    `json:"limit" binding:"required,max=50"`
	}

	SetupValidator()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req syncInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	t.Run("returns validation errors for invalid input", func(t *testing.T) {
		body := strings.NewReader(`{"status": "shipped", "limit": 500}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(RequestIDHeader, "req-validation")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "Request validation failed", resp.Error.Message)
		assert.Equal(t, "req-validation", resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)

		fields := map[string]dto.ValidationDetail{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = d
		}
		assert.Equal(t, "oneof", fields["status"].Tag)
		assert.Equal(t, "Must be one of: paid cancelled", fields["status"].Message)
		assert.Equal(t, "max", fields["limit"].Tag)
		assert.Equal(t, "Must be at most 50", fields["limit"].Message)
	})

	t.Run("returns success for valid input", func(t *testing.T) {
		body := strings.NewReader(`{"status": "paid", "limit": 25}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestValidationMessage(t *testing.T) {
	type listingQuery struct {
		Status    string `validate:"required"`
		Title     string `validate:"min=5"`
		Page      int    `validate:"min=1"`
		Currency  string `validate:"max=3"`
		State     string `validate:"oneof=active paused closed"`
		Quantity  int    `validate:"gte=10"`
		Limit     int    `validate:"lte=100"`
		Price     int    `validate:"gt=0"`
		Offset    int    `validate:"lt=10"`
		Permalink string `validate:"url"`
		SKU       string `validate:"numeric"`
		Code      string `validate:"len=5"`
	}

	err := validator.New().Struct(listingQuery{
		Title:     "ab",
		Currency:  "ARS$",
		State:     "deleted",
		Quantity:  1,
		Limit:     101,
		Offset:    10,
		Permalink: "not a url",
		SKU:       "12a",
		Code:      "ab",
	})
	require.Error(t, err)

	expected := map[string]string{
		"Status":    "This field is required",
		"Title":     "Must be at least 5 characters",
		"Page":      "Must be at least 1",
		"Currency":  "Must be at most 3 characters",
		"State":     "Must be one of: active paused closed",
		"Quantity":  "Must be greater than or equal to 10",
		"Limit":     "Must be less than or equal to 100",
		"Price":     "Must be greater than 0",
		"Offset":    "Must be less than 10",
		"Permalink": "Invalid URL format",
		"SKU":       "Must be numeric",
		"Code":      "Invalid value",
	}

	var fieldErrs validator.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	require.Len(t, fieldErrs, len(expected))
	for _, fe := range fieldErrs {
		assert.Equal(t, expected[fe.Field()], validationMessage(fe), fe.Field())
	}
}

func TestHandleValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("handles validator.ValidationErrors", func(t *testing.T) {
		type Input struct {
			Name string `json:"name" binding:"required"`
		}

		router := gin.New()
		router.POST("/test", func(c *gin.Context) {
			var input Input
			if err := c.ShouldBindJSON(&input); err != nil {
				HandleValidationError(c, err)
				return
			}
		})

		body := strings.NewReader(`{}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeValidation)
	})
}
