package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/bulkflow/internal/platform/ctxutil"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAttachTraceContextKeepsCallerIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-Id", "trace-1")
	rec := serve(r, req)
	if seen == nil || seen.TraceID != "trace-1" || seen.RequestID == "" {
		t.Fatalf("trace data: %+v", seen)
	}
	if rec.Header().Get("X-Trace-Id") != "trace-1" || rec.Header().Get("X-Request-Id") != seen.RequestID {
		t.Fatalf("response headers: %v", rec.Header())
	}

	serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen.TraceID == "" || seen.TraceID == "trace-1" {
		t.Fatalf("generated trace id: %q", seen.TraceID)
	}
}

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.NewNop(), "s3cret")
	r := gin.New()
	r.GET("/bulkTransactions/x", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.RegisteredClaims{Subject: "payer", ExpiresAt: exp}), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "payer"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "payer", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}), http.StatusUnauthorized},
		{"no subject", "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{ExpiresAt: exp}), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "payer", ExpiresAt: exp}), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/bulkTransactions/x", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := serve(r, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status want=%d got=%d", tc.name, tc.want, rec.Code)
		}
		if tc.want == http.StatusOK && rec.Body.String() != "payer" {
			t.Fatalf("%s: subject got=%q", tc.name, rec.Body.String())
		}
	}
}

func TestRateLimitSheds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(0.001, 2))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes: %v", codes)
	}
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(4))
	r.POST("/x", func(c *gin.Context) {
		var v map[string]any
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})
	rec := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"long enough"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got=%d", rec.Code)
	}
}
