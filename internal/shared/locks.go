package shared

import "fmt"

// FxRateCacheKey builds redis keys for cached exchange rates.
func FxRateCacheKey(source, target string) string {
	return fmt.Sprintf("fx:rate:%s:%s", source, target)
}
