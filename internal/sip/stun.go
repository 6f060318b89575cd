package sip

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/stun/v3"
)

// stunTimeout bounds a single server probe so a dead STUN host does not
// stall startup; DiscoverPublicAddr moves on to the next configured server.
const stunTimeout = 3 * time.Second

// DiscoverPublicAddr probes the configured STUN servers in order with
// fallback, and returns the first successfully discovered public IP and
// port. Returns an error only if every server in the list fails.
func DiscoverPublicAddr(servers []string, logger *slog.Logger) (net.IP, int, error) {
	var lastErr error
	for _, server := range servers {
		ip, port, err := probeSTUN(server)
		if err != nil {
			logger.Warn("stun probe failed", "server", server, "error", err)
			lastErr = err
			continue
		}
		logger.Info("stun probe succeeded", "server", server, "public_ip", ip.String(), "public_port", port)
		return ip, port, nil
	}
	return nil, 0, fmt.Errorf("all stun servers failed: %w", lastErr)
}

func probeSTUN(server string) (net.IP, int, error) {
	conn, err := net.Dial("udp4", server)
	if err != nil {
		return nil, 0, fmt.Errorf("dialing %s: %w", server, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(stunTimeout))

	client, err := stun.NewClient(conn)
	if err != nil {
		return nil, 0, fmt.Errorf("creating stun client: %w", err)
	}
	defer client.Close()

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	var xorAddr stun.XORMappedAddress
	var doErr error
	err = client.Do(message, func(res stun.Event) {
		if res.Error != nil {
			doErr = res.Error
			return
		}
		if err := xorAddr.GetFrom(res.Message); err != nil {
			doErr = err
		}
	})
	if err != nil {
		return nil, 0, fmt.Errorf("stun exchange: %w", err)
	}
	if doErr != nil {
		return nil, 0, fmt.Errorf("parsing stun response: %w", doErr)
	}
	return xorAddr.IP, xorAddr.Port, nil
}
