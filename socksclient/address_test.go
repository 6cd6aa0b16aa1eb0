package socksclient

import (
	"testing"
)

func TestClassifyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		want addressType
	}{
		{"192.168.1.1", atypIPv4},
		{"::1", atypIPv6},
		{"2001:db8::1", atypIPv6},
		{"example.com", atypHostname},
		{"", atypHostname},
	}

	for _, tt := range tests {
		got, _ := classifyAddress(tt.host)
		if got != tt.want {
			t.Errorf("classifyAddress(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestAppendAddressRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host string
	}{
		{"ipv4", "10.0.0.1"},
		{"ipv6", "fe80::1"},
		{"hostname", "proxy.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded := appendAddress(nil, tt.host)
			typ := addressType(encoded[0])

			var body []byte
			switch typ {
			case atypIPv4:
				body = encoded[1:5]
			case atypIPv6:
				body = encoded[1:17]
			case atypHostname:
				l := int(encoded[1])
				body = encoded[2 : 2+l]
			}

			if got := decodeAddress(typ, body); got != tt.host {
				t.Errorf("decodeAddress round trip = %q, want %q", got, tt.host)
			}
		})
	}
}

func TestAppendPort(t *testing.T) {
	t.Parallel()

	got := appendPort(nil, 1080)
	want := []byte{0x04, 0x38}
	if string(got) != string(want) {
		t.Errorf("appendPort(1080) = %v, want %v", got, want)
	}
}

func TestSubstituteWildcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		host, proxyIP  string
		want           string
	}{
		{"wildcard replaced", "0.0.0.0", "203.0.113.5", "203.0.113.5"},
		{"non-wildcard kept", "203.0.113.9", "203.0.113.5", "203.0.113.9"},
		{"no proxy ip configured", "0.0.0.0", "", "0.0.0.0"},
		{"hostname untouched", "proxy.example.com", "203.0.113.5", "proxy.example.com"},
	}

	for _, tt := range tests {
		if got := substituteWildcard(tt.host, tt.proxyIP); got != tt.want {
			t.Errorf("%s: substituteWildcard(%q, %q) = %q, want %q", tt.name, tt.host, tt.proxyIP, got, tt.want)
		}
	}
}
