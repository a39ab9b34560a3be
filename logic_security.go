package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func buildPublicURL(baseURL, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(baseURL, "/") + path
	}
	return strings.TrimRight(baseURL, "/") + "/" + path
}

func (a *App) createAdminSessionToken(session AdminSession) (string, error) {
	claims := jwt.MapClaims{
		"email": session.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(adminSessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyAdminSessionToken(tokenString string) (*AdminSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("invalid session payload")
	}
	return &AdminSession{Email: email}, nil
}

func (a *App) requireAdminSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookieName)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		session, err := a.verifyAdminSessionToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		c.Set("adminSession", *session)
		c.Next()
	}
}

func getAdminSession(c *gin.Context) (AdminSession, error) {
	value, ok := c.Get("adminSession")
	if !ok {
		return AdminSession{}, fmt.Errorf("missing session")
	}
	session, ok := value.(AdminSession)
	if !ok {
		return AdminSession{}, fmt.Errorf("invalid session")
	}
	return session, nil
}
