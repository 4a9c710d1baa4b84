package services

import (
	"mwork_attachments/internal/storage"
)

// ServiceContainer holds the application services.
type ServiceContainer struct {
	EntityService EntityService
	Storage       storage.Storage
}

func NewServiceContainer(entityService EntityService, st storage.Storage) *ServiceContainer {
	return &ServiceContainer{
		EntityService: entityService,
		Storage:       st,
	}
}
