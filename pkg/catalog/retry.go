package catalog

import "fmt"

// maxAttempts is the per-page retry ceiling before skipping forward.
const maxAttempts = 3

// withRetry runs op up to attempts times, returning nil on the first success
// or the last error wrapped once all attempts are exhausted.
func withRetry(attempts int, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%d attempts exhausted: %w", attempts, err)
}
