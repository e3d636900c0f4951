package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	Service = "_rovelink._tcp"
	Scheme  = "mdns:"

	DefaultPath    = "/offer"
	DefaultTimeout = 3 * time.Second
)

var ErrNotFound = errors.New("discovery: robot not found")

// NewServer advertises a robot signaling endpoint on the local network.
func NewServer(name string, port int, path string, ips []net.IP) (*mdns.Server, error) {
	if len(ips) == 0 || ips[0] == nil {
		ips = LocalIPs()
	}
	if path == "" {
		path = DefaultPath
	}

	// hostName must end with `.local.`, ips must be set manually
	service, err := mdns.NewMDNSService(
		name, Service, "", name+".local.", port, ips, []string{"path=" + path},
	)
	if err != nil {
		return nil, err
	}

	return mdns.NewServer(&mdns.Config{Zone: service})
}

func Browse(timeout time.Duration) chan *mdns.ServiceEntry {
	entries := make(chan *mdns.ServiceEntry)
	params := &mdns.QueryParam{
		Service: Service, Timeout: timeout, Entries: entries, DisableIPv6: true,
	}

	go func() {
		_ = mdns.Query(params)
		close(entries)
	}()

	return entries
}

// Lookup returns signaling URL of the robot with instance name. It returns
// on the first matching answer, or when ctx is done.
func Lookup(ctx context.Context, name string, timeout time.Duration) (string, error) {
	entries := Browse(timeout)
	// query ends with timeout and closes entries
	defer func() {
		go func() {
			for range entries {
			}
		}()
	}()
	return find(ctx, entries, name)
}

func find(ctx context.Context, entries <-chan *mdns.ServiceEntry, name string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			if Match(entry, name) {
				return EntryURL(entry), nil
			}
		}
	}
}

// Resolve turns `mdns:<name>` into the robot signaling URL, any other
// string is returned as is.
func Resolve(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, Scheme) {
		return rawURL, nil
	}
	return Lookup(ctx, rawURL[len(Scheme):], DefaultTimeout)
}

// Match compares entry instance name, entry.Name looks like
// `name._rovelink._tcp.local.`
func Match(entry *mdns.ServiceEntry, name string) bool {
	return strings.HasPrefix(entry.Name, name+"."+Service+".")
}

func EntryURL(entry *mdns.ServiceEntry) string {
	path := DefaultPath
	for _, field := range entry.InfoFields {
		if s, ok := strings.CutPrefix(field, "path="); ok && s != "" {
			path = s
		}
	}

	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		host = "[" + entry.AddrV6.String() + "]"
	}
	host = strings.TrimSuffix(host, ".")

	return fmt.Sprintf("http://%s:%d%s", host, entry.Port, path)
}

func LocalIPs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue // interface down
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue // loopback interface
		}

		var addrs []net.Addr
		if addrs, err = iface.Addrs(); err != nil {
			continue
		}
		for _, addr := range addrs {
			switch addr := addr.(type) {
			case *net.IPNet:
				ips = append(ips, addr.IP)
			case *net.IPAddr:
				ips = append(ips, addr.IP)
			}
		}
	}
	return ips
}
