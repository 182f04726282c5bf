package handlers

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/geoip"
)

// clientIP derives the caller's address. The proxy-reported hop wins over
// fiber's resolved IP, which wins over the raw socket address.
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return geoip.CleanIP(first)
		}
	}
	if ip := c.IP(); ip != "" {
		return geoip.CleanIP(ip)
	}
	if addr := c.Context().RemoteAddr(); addr != nil {
		if host := hostFromAddr(addr.String()); host != "" {
			return geoip.CleanIP(host)
		}
	}
	return domain.LocationUnknown
}

// hostFromAddr strips an optional port. IPv6 addresses arrive bracketed when
// a port is present.
func hostFromAddr(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
