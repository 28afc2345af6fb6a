package proxy

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkTarget(t *testing.T, p *SafetyPolicy, raw string) error {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return p.Check(u)
}

func TestSafetyPolicyRejectsUnsafeTargets(t *testing.T) {
	p := NewSafetyPolicy(false)

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"loopback v4", "http://127.0.0.1/admin", ErrUnsafeTarget},
		{"loopback v4 alias", "http://127.8.4.1/", ErrUnsafeTarget},
		{"loopback v6", "http://[::1]/", ErrUnsafeTarget},
		{"unspecified v4", "http://0.0.0.0/", ErrUnsafeTarget},
		{"unspecified v6", "http://[::]/", ErrUnsafeTarget},
		{"localhost name", "http://localhost:8080/", ErrUnsafeTarget},
		{"localhost subdomain", "http://foo.localhost/", ErrUnsafeTarget},
		{"rfc1918 10", "http://10.0.0.5/", ErrUnsafeTarget},
		{"rfc1918 172", "http://172.16.0.1/", ErrUnsafeTarget},
		{"rfc1918 192", "http://192.168.1.1/", ErrUnsafeTarget},
		{"link local", "http://169.254.169.254/latest/meta-data", ErrUnsafeTarget},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", ErrUnsafeTarget},
		{"ftp scheme", "ftp://example.com/", ErrInvalidTarget},
		{"file scheme", "file:///etc/passwd", ErrInvalidTarget},
		{"empty host", "http:///path", ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTarget(t, p, tt.url)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSafetyPolicyAcceptsPublicAddresses(t *testing.T) {
	p := NewSafetyPolicy(false)
	assert.NoError(t, checkTarget(t, p, "https://93.184.216.34/"))
	assert.NoError(t, checkTarget(t, p, "http://[2606:2800:220:1:248:1893:25c8:1946]/"))
}

func TestSafetyPolicyAllowPrivate(t *testing.T) {
	p := NewSafetyPolicy(true)

	// Private ranges pass, loopback still does not.
	assert.NoError(t, checkTarget(t, p, "http://192.168.1.1/"))
	assert.NoError(t, checkTarget(t, p, "http://10.0.0.5/"))
	assert.ErrorIs(t, checkTarget(t, p, "http://127.0.0.1/"), ErrUnsafeTarget)
}

func TestSafetyPolicyResolvesHostnames(t *testing.T) {
	p := &SafetyPolicy{
		lookup: func(host string) ([]string, error) {
			// One public and one private address: the whole host fails.
			return []string{"93.184.216.34", "10.0.0.5"}, nil
		},
	}
	assert.ErrorIs(t, checkTarget(t, p, "https://rebind.example.com/"), ErrUnsafeTarget)

	p.lookup = func(host string) ([]string, error) {
		return []string{"93.184.216.34"}, nil
	}
	assert.NoError(t, checkTarget(t, p, "https://clean.example.com/"))
}
