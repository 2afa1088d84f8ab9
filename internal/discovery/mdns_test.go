// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers manager defaults and service entry parsing
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Host", Port: 8928})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.Path != "/seqplay" {
		t.Errorf("expected default path /seqplay, got %s", mgr.config.Path)
	}
	if mgr.Servers() == nil {
		t.Error("servers channel should not be nil")
	}
	mgr.Stop()
}

func TestHostFromEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *mdns.ServiceEntry
		wantNil  bool
		wantAddr string
		wantPath string
	}{
		{"nil entry", nil, true, "", ""},
		{"no ipv4", &mdns.ServiceEntry{Name: "x", Port: 1}, true, "", ""},
		{
			"default path",
			&mdns.ServiceEntry{Name: "h", AddrV4: net.IPv4(192, 168, 1, 5), Port: 8928},
			false, "192.168.1.5:8928", "/seqplay",
		},
		{
			"advertised path",
			&mdns.ServiceEntry{Name: "h", AddrV4: net.IPv4(10, 0, 0, 2), Port: 9000, InfoFields: []string{"path=/custom"}},
			false, "10.0.0.2:9000", "/custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hostFromEntry(tt.entry)
			if tt.wantNil {
				if h != nil {
					t.Fatalf("expected nil, got %+v", h)
				}
				return
			}
			if h == nil {
				t.Fatal("expected host info")
			}
			if h.Addr() != tt.wantAddr {
				t.Errorf("expected addr %s, got %s", tt.wantAddr, h.Addr())
			}
			if h.Path != tt.wantPath {
				t.Errorf("expected path %s, got %s", tt.wantPath, h.Path)
			}
		})
	}
}
