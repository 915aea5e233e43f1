package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestGetRealClientIP(t *testing.T) {
	tests := []struct {
		name         string
		forwardedFor string
		fallbackIP   string
		want         string
	}{
		{
			name:         "single forwarded address",
			forwardedFor: "203.0.113.50",
			want:         "203.0.113.50",
		},
		{
			name:         "forwarded chain uses first hop",
			forwardedFor: "203.0.113.50, 10.0.0.1, 172.16.0.1",
			want:         "203.0.113.50",
		},
		{
			name:         "forwarded with surrounding whitespace",
			forwardedFor: " 198.51.100.7 ",
			want:         "198.51.100.7",
		},
		{
			name:       "no header uses fallback",
			fallbackIP: "192.168.1.1",
			want:       "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.forwardedFor != "" {
				c.Request.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			if tt.fallbackIP != "" {
				c.Request.RemoteAddr = tt.fallbackIP + ":8080"
			}

			got := GetRealClientIP(c)
			if got != tt.want {
				t.Errorf("GetRealClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRealUserAgent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	if got := GetRealUserAgent(c); got != "Mozilla/5.0 (X11; Linux x86_64)" {
		t.Errorf("GetRealUserAgent() = %v", got)
	}
}
