package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted TrustedProxies
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr ipv4", nil, nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote addr ipv6", nil, nil, "[::1]:5555", "::1"},
		{"forwarded header ignored without trusted proxies", nil,
			map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.1:1234", "198.51.100.1"},
		{"forwarded header ignored from untrusted peer", trusted,
			map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "203.0.113.8"}, "198.51.100.1:1234", "198.51.100.1"},
		{"nearest untrusted hop from trusted peer", trusted,
			map[string]string{"X-Forwarded-For": "198.51.100.66, 203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"single trusted address", trusted,
			map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.10:80", "203.0.113.7"},
		{"real ip header from trusted peer", trusted,
			map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "198.51.100.4"},
		{"all hops trusted", trusted,
			map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.1"}, "10.0.0.2:1234", "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, proxies, 2)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestClientMetadata(t *testing.T) {
	var got []string
	h := ClientMetadata(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, requestcontext.ClientIP(r.Context()))
	}))

	// Rotating forwarding headers from one peer still map to one client.
	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", spoofed)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, []string{"198.51.100.9", "198.51.100.9", "198.51.100.9"}, got)
}
