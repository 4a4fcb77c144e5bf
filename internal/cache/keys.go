package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func LiveOccupancyKey() string {
	return "live:occupancy"
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
