package config

// Supported gorm engines.
const (
	GormEngineSQLite   = "sqlite"
	GormEngineMySQL    = "mysql"
	GormEnginePostgres = "postgres"
)

// DB holds the database configuration settings.
// For sqlite, Name is the database file path.
type DB struct {
	Extras     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	GormEngine string
}
