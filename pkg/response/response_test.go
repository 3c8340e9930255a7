package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		response.RegisterValidator(v)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		kind     apperr.Kind
		status   int
		redirect string
	}{
		{apperr.KindAuthRequired, http.StatusUnauthorized, response.RedirectAuth},
		{apperr.KindSubscriptionRequired, http.StatusPaymentRequired, response.RedirectSubscription},
		{apperr.KindPermissionDenied, http.StatusForbidden, response.RedirectHome},
		{apperr.KindValidation, http.StatusBadRequest, ""},
		{apperr.KindInsufficientBalance, http.StatusConflict, ""},
		{apperr.KindAlreadyUnlocked, http.StatusOK, ""},
		{apperr.KindNotFound, http.StatusNotFound, ""},
		{apperr.KindRateLimited, http.StatusTooManyRequests, ""},
		{apperr.KindNetwork, http.StatusBadGateway, ""},
		{apperr.KindPersistence, http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			status, redirect := response.StatusOf(tc.kind)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.redirect, redirect)
		})
	}
}

func render(fn func(c *gin.Context)) (*httptest.ResponseRecorder, response.Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)
	var out response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestError_GateRedirect(t *testing.T) {
	w, out := render(func(c *gin.Context) {
		response.Error(c, fmt.Errorf("load session: %w", apperr.ErrSubscriptionRequired))
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, response.RedirectSubscription, out.Redirect)
	assert.Equal(t, http.StatusPaymentRequired, out.Code)
}

func TestError_AlreadyUnlockedIsSuccess(t *testing.T) {
	w, out := render(func(c *gin.Context) { response.Error(c, apperr.ErrAlreadyUnlocked) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, out.Code)
	assert.JSONEq(t, `{"code":0,"message":"already unlocked","data":{"already_unlocked":true}}`, w.Body.String())
}

func TestError_HidesInternalCauses(t *testing.T) {
	w, out := render(func(c *gin.Context) {
		response.Error(c, errors.New("pq: connection refused to 10.0.0.3"))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", out.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.3")

	w, out = render(func(c *gin.Context) {
		response.Error(c, apperr.Network(errors.New("dial tcp: timeout"), "checkout"))
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "upstream service unavailable", out.Message)
}

func TestError_ValidationFields(t *testing.T) {
	w, out := render(func(c *gin.Context) {
		response.Error(c, apperr.Validation("message is too long", apperr.FieldError{Field: "content", Message: "too long"}))
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, out.Fields, 1)
	assert.Equal(t, "content", out.Fields[0].Field)
}

type signup struct {
	Username string `json:"username" binding:"required,min=3"`
	Profile  struct {
		Website string `json:"website" binding:"omitempty,url"`
	} `json:"profile"`
}

func TestBindError_UsesJSONNames(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"profile":{"website":"nope"}}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req signup
	err := c.ShouldBindJSON(&req)
	require.Error(t, err)
	response.BindError(c, err)

	var out response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", out.Message)

	byField := map[string]string{}
	for _, f := range out.Fields {
		byField[f.Field] = f.Message
	}
	assert.Equal(t, "username is required", byField["username"])
	assert.Contains(t, byField, "profile.website")
}

func TestBindError_MalformedBody(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req signup
	response.BindError(c, c.ShouldBindJSON(&req))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}
