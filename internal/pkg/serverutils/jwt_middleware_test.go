package serverutils

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseUserID(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"user_id": "u-42"})

	id, err := ParseUserID("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", id)

	_, err = ParseUserID("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseUserID("", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseUserID("s3cret", sign(t, "s3cret", jwt.MapClaims{"sub": "x"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOptionalJwt(t *testing.T) {
	app := fiber.New()
	app.Use(OptionalJwt("s3cret"))
	app.Get("/who", func(c *fiber.Ctx) error {
		id, _ := c.Locals("user_id").(string)
		return c.SendString(id)
	})

	cases := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{"anonymous", "/who", "", 200, ""},
		{"query token", "/who?token=" + sign(t, "s3cret", jwt.MapClaims{"user_id": "alice"}), "", 200, "alice"},
		{"bearer header", "/who", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"user_id": "bob"}), 200, "bob"},
		{"bad token", "/who?token=garbage", "", 401, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.status == 200 {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tc.body, string(body))
			}
		})
	}
}
