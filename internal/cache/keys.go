package cache

import "fmt"

const keyPrefix = "nextbus:"

func KeyRoute(routeID string) string {
	return fmt.Sprintf("route:%s", routeID)
}
