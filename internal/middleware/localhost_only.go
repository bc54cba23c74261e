package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly only allow localhost or whitelisted IPs access
type LocalhostOnly struct {
	logger   *logrus.Logger
	networks []*net.IPNet
	ips      []net.IP
}

// NewLocalhostOnly allowedIPs holds plain IPs or CIDR ranges; invalid entries
// are logged and skipped.
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	l := &LocalhostOnly{logger: logger}
	for _, allowed := range allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				logger.WithError(err).WithField("allowed", allowed).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			l.networks = append(l.networks, ipNet)
			continue
		}
		ip := net.ParseIP(allowed)
		if ip == nil {
			logger.WithField("allowed", allowed).Warn("Invalid IP in allowedIPs")
			continue
		}
		l.ips = append(l.ips, ip)
	}
	return l
}

// Restrict rejects clients outside the allow list
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !l.isAllowedIP(clientIP) {
			l.logger.WithFields(logrus.Fields{
				"client_ip":  clientIP,
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"user_agent": c.GetHeader("User-Agent"),
			}).Warn("Reject non-whitelisted access to admin API")

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "This API is only accessible from allowed IP addresses",
				"code":    "IP_NOT_ALLOWED",
			})
			return
		}
		c.Next()
	}
}

func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	for _, allowed := range l.ips {
		if allowed.Equal(parsed) {
			return true
		}
	}
	for _, ipNet := range l.networks {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
