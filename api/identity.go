package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenCookie = "access_token"
	userIDKey         = "userID"
)

var ErrMissingToken = errors.New("access token is missing")

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity 驗證由外部身分服務簽發的 access token，只接受 EdDSA 簽章
type Identity struct {
	publicKey ed25519.PublicKey
}

func NewIdentity(publicKey ed25519.PublicKey) *Identity {
	return &Identity{publicKey: publicKey}
}

// ParsePublicKey 解析 base64 編碼的 ed25519 公鑰
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	const op = "ParsePublicKey"
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode public key, err=%w", op, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("[%s] Invalid public key size: %d", op, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func (i *Identity) Parse(tokenString string) (*Claims, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// Middleware 驗證請求者身分，並將使用者 ID 放入 gin.Context
// EventSource 無法設定 header，因此也接受 cookie 中的 token
func (i *Identity) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
			return
		}
		claims, err := i.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "invalid access token"})
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "invalid token subject"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
	if cookie, err := c.Cookie(accessTokenCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", ErrMissingToken
}

func userIDFrom(c *gin.Context) uuid.UUID {
	return c.MustGet(userIDKey).(uuid.UUID)
}
