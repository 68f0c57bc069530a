package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	actorKey    = "actor_id"
	actorHeader = "X-Actor-ID"
)

// RequestLogger logs basic request details and latency, plus any errors the
// handlers attached to the context.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last().Err).Error("request failed")
			return
		}
		entry.Info("request")
	}
}

// Authenticate resolves the acting user. With a secret configured the
// request must carry an HMAC-signed bearer token and its subject becomes the
// actor. Without a secret the X-Actor-ID header is trusted, which is only
// meant for local development.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			if actor := strings.TrimSpace(c.GetHeader(actorHeader)); actor != "" {
				c.Set(actorKey, actor)
			}
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			writeError(c, http.StatusUnauthorized, codeUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(c, http.StatusUnauthorized, codeUnauthorized, "invalid authorization format")
			return
		}

		subject, err := parseSubject(parts[1], secret)
		if err != nil {
			writeError(c, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token")
			return
		}
		c.Set(actorKey, subject)
		c.Next()
	}
}

func parseSubject(raw string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func actorID(c *gin.Context) string {
	return c.GetString(actorKey)
}
