package memory

import (
	"testing"

	"github.com/example/weekwise/internal/persistence"
	"github.com/example/weekwise/internal/persistence/persistencetest"
)

func TestStorageConformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return Open(nil)
	})
}
