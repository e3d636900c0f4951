package webrtc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/stun"
)

const DefaultSTUN = "stun.l.google.com:19302"

// ResolveCandidates replaces "stun" item with public IP and host names with
// their first IP, NAT1To1 accepts only IPs
func ResolveCandidates(candidates []string) ([]string, error) {
	var ips []string
	for _, s := range candidates {
		switch {
		case s == "stun":
			ip, err := GetCachedPublicIP()
			if err != nil {
				return nil, err
			}
			ips = append(ips, ip.String())
		case net.ParseIP(s) != nil:
			ips = append(ips, s)
		default:
			addrs, err := net.LookupIP(s)
			if err != nil {
				return nil, err
			}
			if len(addrs) == 0 {
				return nil, fmt.Errorf("webrtc: can't resolve: %s", s)
			}
			ips = append(ips, addrs[0].String())
		}
	}
	return ips, nil
}

// GetPublicIP example from https://github.com/pion/stun
func GetPublicIP() (net.IP, error) {
	conn, err := net.Dial("udp", DefaultSTUN)
	if err != nil {
		return nil, err
	}

	c, err := stun.NewClient(conn)
	if err != nil {
		return nil, err
	}

	if err = conn.SetDeadline(time.Now().Add(time.Second * 3)); err != nil {
		return nil, err
	}

	var res stun.Event

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if err = c.Do(message, func(e stun.Event) { res = e }); err != nil {
		return nil, err
	}
	if err = c.Close(); err != nil {
		return nil, err
	}

	if res.Error != nil {
		return nil, res.Error
	}

	var xorAddr stun.XORMappedAddress
	if err = xorAddr.GetFrom(res.Message); err != nil {
		return nil, err
	}

	return xorAddr.IP, nil
}

var (
	cachedIP net.IP
	cachedTS time.Time
	cachedMu sync.Mutex
)

func GetCachedPublicIP() (net.IP, error) {
	cachedMu.Lock()
	defer cachedMu.Unlock()

	now := time.Now()
	if now.After(cachedTS) {
		newIP, err := GetPublicIP()
		if err == nil {
			cachedIP = newIP
			cachedTS = now.Add(time.Minute * 5)
		} else if cachedIP == nil {
			return nil, err
		}
	}

	return cachedIP, nil
}
