package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRequestLogger_LogsStatusAndPath(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected a log entry")
	}
	if entry.Level != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", entry.Level)
	}
	if entry.Data["method"] != http.MethodPost || entry.Data["path"] != "/bookings" || entry.Data["status"] != http.StatusCreated {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
	if _, ok := entry.Data["duration"]; !ok {
		t.Fatalf("expected duration field, got %v", entry.Data)
	}
}

func TestRequestLogger_ErrorsLogAtErrorLevel(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/payments/:id", func(c *gin.Context) {
		writeDomainError(c, errors.New("connection reset"))
	})

	req := httptest.NewRequest(http.MethodGet, "/payments/p-1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error entry, got %v", entry)
	}
	if entry.Data["status"] != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %v", entry.Data["status"])
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	valid := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	tests := []struct {
		name           string
		secret         []byte
		header         string
		value          string
		expectedStatus int
		expectedActor  string
	}{
		{
			name:           "valid bearer",
			secret:         secret,
			header:         "Authorization",
			value:          "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, valid),
			expectedStatus: http.StatusOK,
			expectedActor:  "user-1",
		},
		{
			name:           "missing header",
			secret:         secret,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "not bearer",
			secret:         secret,
			header:         "Authorization",
			value:          "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong secret",
			secret:         secret,
			header:         "Authorization",
			value:          "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), valid),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "expired",
			secret: secret,
			header: "Authorization",
			value: "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "no subject",
			secret:         secret,
			header:         "Authorization",
			value:          "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unsigned token",
			secret:         secret,
			header:         "Authorization",
			value:          "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "dev header without secret",
			header:         actorHeader,
			value:          "user-2",
			expectedStatus: http.StatusOK,
			expectedActor:  "user-2",
		},
		{
			name:           "anonymous without secret",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			r := gin.New()
			r.GET("/me", Authenticate(tt.secret), func(c *gin.Context) {
				seen = actorID(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if seen != tt.expectedActor {
				t.Fatalf("expected actor %q, got %q", tt.expectedActor, seen)
			}
		})
	}
}
