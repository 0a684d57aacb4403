package repository

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestMemoryStores(t *testing.T) {
	suite.Run(t, &storeSuite{
		newStores: func() (eventStore, registrationStore) {
			return NewMemory()
		},
	})
}
