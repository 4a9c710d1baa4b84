package contextkeys

type contextKey string

// DBContextKey is where *gorm.DB is kept on the request and gin contexts.
const DBContextKey = contextKey("db")
