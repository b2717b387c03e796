//go:build !prod

package database

const dbFile = "inkpilot.db"

// GetDefaultDBPath keeps the development database next to the working
// directory.
func GetDefaultDBPath() string {
	return dbFile
}

func IsDevelopment() bool {
	return true
}
