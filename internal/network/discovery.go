package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"webfitts/internal/api"
)

const probeTimeout = 500 * time.Millisecond

// ErrNoRelay is returned by FindRelay when the scan finds nothing.
var ErrNoRelay = errors.New("no relay found on the local network")

// DiscoveredRelay represents a relay found on the network
type DiscoveredRelay struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`

	// Status is nil when /api/status needs a token.
	Status *api.StatusResponse `json:"status,omitempty"`
}

// Addr returns host:port for the relay.
func (d DiscoveredRelay) Addr() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// ProbeRelay checks whether a relay answers at addr.
func ProbeRelay(ctx context.Context, addr string) (DiscoveredRelay, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return DiscoveredRelay{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return DiscoveredRelay{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	client := &http.Client{Timeout: probeTimeout}
	base := "http://" + addr

	var health api.HealthResponse
	if err := getJSON(ctx, client, base+"/health", &health); err != nil || health.Service != api.ServiceName {
		return DiscoveredRelay{}, false
	}

	found := DiscoveredRelay{IP: host, Port: port}
	var status api.StatusResponse
	if err := getJSON(ctx, client, base+"/api/status", &status); err == nil {
		found.Status = &status
	}
	return found, true
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// ScanLAN probes every host of each local /24 for a relay on port.
// Results are sorted by address.
func ScanLAN(ctx context.Context, port int) ([]DiscoveredRelay, error) {
	localIPs, err := GetLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to list local addresses: %w", err)
	}

	var (
		relays []DiscoveredRelay
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	seen := make(map[string]bool)
	for _, local := range localIPs {
		ip := net.ParseIP(local).To4()
		if ip == nil {
			continue
		}
		for i := 1; i <= 254; i++ {
			candidate := net.IPv4(ip[0], ip[1], ip[2], byte(i)).String()
			if seen[candidate] {
				continue
			}
			seen[candidate] = true

			wg.Add(1)
			go func(addr string) {
				defer wg.Done()
				if r, ok := ProbeRelay(ctx, addr); ok {
					mu.Lock()
					relays = append(relays, r)
					mu.Unlock()
				}
			}(net.JoinHostPort(candidate, strconv.Itoa(port)))
		}
	}
	wg.Wait()

	sort.Slice(relays, func(i, j int) bool { return relays[i].IP < relays[j].IP })
	return relays, nil
}

// FindRelay returns the first relay on localhost or, failing that, the
// local network.
func FindRelay(ctx context.Context, port int) (DiscoveredRelay, error) {
	if r, ok := ProbeRelay(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port))); ok {
		return r, nil
	}
	relays, err := ScanLAN(ctx, port)
	if err != nil {
		return DiscoveredRelay{}, err
	}
	if len(relays) == 0 {
		return DiscoveredRelay{}, ErrNoRelay
	}
	return relays[0], nil
}

// GetLocalIPs returns all available local IPv4 addresses
func GetLocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue // interface down
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue // loopback interface
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue // not an ipv4 address
			}
			ips = append(ips, ip.String())
		}
	}
	return ips, nil
}
