package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/travelcraft/booking-backend/internal/models"
)

// privateRanges are the RFC 1918 blocks skipped when reading proxy headers
var privateRanges = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, subnet, _ := net.ParseCIDR(cidr)
		nets = append(nets, subnet)
	}
	return nets
}()

// GetRealIP extracts the client IP address from the request.
//
// Priority order:
// 1. X-Real-IP header, when it holds a public address
// 2. first public address in X-Forwarded-For, else its first valid entry
// 3. gin's ClientIP()
func GetRealIP(c *gin.Context) string {
	realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP"))
	if ip := net.ParseIP(realIP); ip != nil && !isPrivateIP(ip) {
		return realIP
	}

	// Format: X-Forwarded-For: client, proxy1, proxy2
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		for _, ipStr := range ips {
			clientIP := strings.TrimSpace(ipStr)
			ip := net.ParseIP(clientIP)
			if ip != nil && !isPrivateIP(ip) && !ip.IsLoopback() {
				return clientIP
			}
		}
		if first := strings.TrimSpace(ips[0]); net.ParseIP(first) != nil {
			return first
		}
	}

	return c.ClientIP()
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return "Unknown"
	}
	return ua
}

// RequestMeta collects the caller details recorded on payment audits
func RequestMeta(c *gin.Context) models.RequestMeta {
	userAgent := GetUserAgent(c)
	return models.RequestMeta{
		IPAddress: GetRealIP(c),
		UserAgent: userAgent,
		Client:    ParseUserAgent(userAgent).Summary(),
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, subnet := range privateRanges {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}
