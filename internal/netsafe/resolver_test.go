package netsafe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"por-go/internal/por"
)

func staticLookup(addrs ...string) LookupFunc {
	return func(_ context.Context, _ string) ([]netip.Addr, error) {
		out := make([]netip.Addr, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, netip.MustParseAddr(a))
		}
		return out, nil
	}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		lookup       LookupFunc
		allowPrivate bool
		wantAddr     string
		wantErr      error
	}{
		{
			name:     "public address accepted",
			url:      "https://example.com/proof.zip",
			lookup:   staticLookup("93.184.216.34"),
			wantAddr: "93.184.216.34",
		},
		{
			name:     "public address with explicit port",
			url:      "http://example.com:8080/proof.zip",
			lookup:   staticLookup("93.184.216.34"),
			wantAddr: "93.184.216.34",
		},
		{
			name:    "ftp scheme rejected",
			url:     "ftp://example.com/proof.zip",
			wantErr: por.ErrInvalidInput,
		},
		{
			name:    "missing scheme rejected",
			url:     "example.com/proof.zip",
			wantErr: por.ErrInvalidInput,
		},
		{
			name:    "port out of range",
			url:     "http://example.com:99999/proof.zip",
			wantErr: por.ErrInvalidInput,
		},
		{
			name:    "missing host",
			url:     "http:///proof.zip",
			wantErr: por.ErrInvalidInput,
		},
		{
			name:    "loopback rejected",
			url:     "http://localhost/proof.zip",
			lookup:  staticLookup("127.0.0.1"),
			wantErr: por.ErrForbiddenAddress,
		},
		{
			name:    "private range rejected",
			url:     "http://internal.corp/proof.zip",
			lookup:  staticLookup("10.0.0.5"),
			wantErr: por.ErrForbiddenAddress,
		},
		{
			name:    "link local rejected",
			url:     "http://metadata/proof.zip",
			lookup:  staticLookup("169.254.169.254"),
			wantErr: por.ErrForbiddenAddress,
		},
		{
			name:    "unspecified rejected",
			url:     "http://zero/proof.zip",
			lookup:  staticLookup("0.0.0.0"),
			wantErr: por.ErrForbiddenAddress,
		},
		{
			name:    "ipv6 loopback literal rejected",
			url:     "http://[::1]/proof.zip",
			wantErr: por.ErrForbiddenAddress,
		},
		{
			name:         "private allowed in development mode",
			url:          "http://localhost/proof.zip",
			lookup:       staticLookup("127.0.0.1"),
			allowPrivate: true,
			wantAddr:     "127.0.0.1",
		},
		{
			name:     "literal public address skips lookup",
			url:      "http://93.184.216.34/proof.zip",
			wantAddr: "93.184.216.34",
		},
		{
			name:     "first address wins",
			url:      "http://example.com/proof.zip",
			lookup:   staticLookup("93.184.216.34", "10.0.0.5"),
			wantAddr: "93.184.216.34",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := tt.lookup
			if lookup == nil {
				lookup = func(context.Context, string) ([]netip.Addr, error) {
					return nil, fmt.Errorf("lookup should not be called")
				}
			}
			r := NewResolverWithLookup(tt.allowPrivate, lookup)

			addr, err := r.Resolve(context.Background(), tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if addr.String() != tt.wantAddr {
				t.Errorf("Resolve() = %s, want %s", addr, tt.wantAddr)
			}
		})
	}
}

func TestResolver_DNSFailureIsFetchError(t *testing.T) {
	r := NewResolverWithLookup(false, func(context.Context, string) ([]netip.Addr, error) {
		return nil, fmt.Errorf("no such host")
	})

	_, err := r.Resolve(context.Background(), "http://doesnotexist.example/proof.zip")
	if !errors.Is(err, por.ErrFetch) {
		t.Errorf("Resolve() error = %v, want ErrFetch", err)
	}
}

func TestResolver_EmptyLookupResult(t *testing.T) {
	r := NewResolverWithLookup(false, staticLookup())

	_, err := r.Resolve(context.Background(), "http://empty.example/proof.zip")
	if !errors.Is(err, por.ErrFetch) {
		t.Errorf("Resolve() error = %v, want ErrFetch", err)
	}
}
