// Package clock abstracts time for components that stamp rows.
package clock

import "time"

// Clock supplies the current time. Claim stamps and created_at columns go
// through this interface so tests can pin them.
type Clock interface {
	Now() time.Time
}
