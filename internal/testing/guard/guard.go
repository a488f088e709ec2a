package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TEN_TEST_MODE") == "" {
			_ = os.Setenv("TEN_TEST_MODE", "1")
		}
	})
}
