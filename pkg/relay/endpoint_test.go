package relay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		port    int
		want    Endpoint
		wantErr bool
	}{
		{name: "full uri", uri: "http://10.0.0.5:5555", port: 5901, want: Endpoint{Host: "10.0.0.5", Port: 5901}},
		{name: "bare host port", uri: "10.0.0.5:5555", port: 5901, want: Endpoint{Host: "10.0.0.5", Port: 5901}},
		{name: "host only", uri: "node-a", port: 5900, want: Endpoint{Host: "node-a", Port: 5900}},
		{name: "uri with path", uri: "https://node-a/wd/hub", port: 5900, want: Endpoint{Host: "node-a", Port: 5900}},
		{name: "ipv6", uri: "http://[fd00::1]:5555", port: 5900, want: Endpoint{Host: "fd00::1", Port: 5900}},
		{name: "empty", uri: "", port: 5900, wantErr: true},
		{name: "scheme only", uri: "http://", port: 5900, wantErr: true},
		{name: "missing host", uri: "http://:5555", port: 5900, wantErr: true},
		{name: "port zero", uri: "10.0.0.5", port: 0, wantErr: true},
		{name: "port too large", uri: "10.0.0.5", port: 70000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.uri, tt.port)
			if tt.wantErr {
				require.True(t, errors.Is(err, ErrEndpointInvalid), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			again, err := Resolve(tt.uri, tt.port)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	require.Equal(t, "ws://10.1.1.1:5901", Endpoint{Host: "10.1.1.1", Port: 5901}.URL())
	require.Equal(t, "ws://[fd00::1]:5900", Endpoint{Host: "fd00::1", Port: 5900}.URL())
}
