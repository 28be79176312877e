package redisrepo

import (
	"fmt"
	"net/url"
)

const ns = "tickets:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// KeyIdemBooking scopes a client's Idempotency-Key to one event and user.
// The user name is escaped so it cannot contain the separator.
func KeyIdemBooking(eventID int64, userName, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%d:%s:%s", ns, eventID, url.QueryEscape(userName), idemKey)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}

// genKey counts invalidations of key.
func genKey(key string) string {
	return key + ":gen"
}
