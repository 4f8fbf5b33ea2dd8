package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(admins AdminSet) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secret", AuthMiddleware(admins), func(c *gin.Context) {
		id, _ := GetAdminID(c)
		c.JSON(http.StatusOK, gin.H{"admin_id": id})
	})
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("test-secret")
	token, err := GenerateToken(77)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(77), claims.AdminID)
	assert.Equal(t, "77", claims.Subject)

	InitJWT("other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestForeignTokenRejected(t *testing.T) {
	InitJWT("test-secret")
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AdminID: 77,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "77",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateToken(signed)
	assert.Error(t, err)

	mismatched := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AdminID: 77,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "78",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err = mismatched.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateToken(signed)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	InitJWT("test-secret")
	r := newRouter(NewAdminSet([]int64{77}))

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer not-a-jwt").Code)

	stranger, err := GenerateToken(5)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(r, "Bearer "+stranger).Code)

	admin, err := GenerateToken(77)
	require.NoError(t, err)
	w := call(r, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"admin_id":77}`, w.Body.String())
}
