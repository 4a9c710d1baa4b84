package handlers

// AppHandlers holds every HTTP handler of the application.
type AppHandlers struct {
	EntityHandler *EntityHandler
	FileHandler   *FileHandler
}
