package memory_test

import (
	"testing"

	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/memory"
	"github.com/aussiebroadwan/authz/internal/authz/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, maxValueSize int) store.Store {
		return memory.NewStore(maxValueSize)
	})
}
