package visits

import (
	"strings"

	"github.com/linksight/linksight/internal/processing/links"
)

// ClassifyDevice buckets a User-Agent into desktop, mobile, or tablet by
// substring matching. Tablet markers win over mobile ones so Android
// tablets (which also advertise "mobile") land in the tablet bucket.
// Unknown or empty agents fall back to desktop.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return links.DeviceTablet
	}
	if strings.Contains(ua, "mobile") {
		return links.DeviceMobile
	}
	return links.DeviceDesktop
}
