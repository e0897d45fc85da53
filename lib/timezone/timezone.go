package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force timestamps into exchange-local time regardless of where the
// harvester runs; listing dates and harvest reports are read against the
// Indian market calendar.
func Now() time.Time {
	return time.Now().In(Location)
}

// ParseDate reads a yyyy-mm-dd date as an exchange-local day.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, value, Location)
}
